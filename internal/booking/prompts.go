package booking

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wolfman30/agendmed/internal/availability"
	"github.com/wolfman30/agendmed/internal/catalog"
)

const (
	replyNotFound           = "Desculpe, não consegui encontrar seu agendamento. Digite \"agendar\" para começar novamente."
	replyNoServices         = "😕 No momento não há serviços disponíveis para agendamento. Por favor, tente novamente mais tarde."
	replyCatalogUnavailable = "⚠️ Não consegui carregar a lista de serviços agora. Por favor, tente novamente em alguns instantes."
	replyInvalidPeriod      = "❌ Opção inválida. Por favor, digite 1 para Manhã ou 2 para Tarde."
	replyInvalidDateFormat  = "❌ Formato inválido. Por favor, use o formato DD/MM/YYYY (ex: 25/12/2024)"
	replyInvalidDate        = "❌ Data inválida. Por favor, confira o dia e o mês (formato DD/MM/YYYY)."
	replyPastDate           = "❌ A data não pode estar no passado. Por favor, escolha outra data."
	replySlotsUnavailable   = "⚠️ Não consegui consultar a agenda agora. Por favor, tente novamente em alguns instantes."
	replyCancelled          = "❌ Agendamento cancelado. Digite \"agendar\" se desejar tentar novamente."
	replyInvalidConfirm     = "❌ Resposta inválida. Por favor, digite \"sim\" ou \"não\"."
)

// FormatPrice renders a price the way the tenant app shows it ("100", "150.5").
func FormatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

func servicesList(services []catalog.ServiceOffering) string {
	var b strings.Builder
	b.WriteString("📋 *Serviços Disponíveis:*\n\n")
	for i, s := range services {
		fmt.Fprintf(&b, "%d. %s (%dmin - R$ %s)\n", i+1, s.Name, s.DurationMinutes, FormatPrice(s.Price))
	}
	b.WriteString("\nDigite o número do serviço desejado:")
	return b.String()
}

func serviceChoices(services []catalog.ServiceOffering) []string {
	out := make([]string, 0, len(services))
	for i, s := range services {
		out = append(out, fmt.Sprintf("%d. %s (%dmin - R$ %s)", i+1, s.Name, s.DurationMinutes, FormatPrice(s.Price)))
	}
	return out
}

func invalidIndex(max int) string {
	return fmt.Sprintf("❌ Opção inválida. Por favor, digite um número de 1 a %d.", max)
}

func periodPrompt(service catalog.ServiceOffering) string {
	return fmt.Sprintf("✅ Serviço selecionado: *%s*\n\nQual período você prefere?\n\n1️⃣ Manhã (08:00 - 12:00)\n2️⃣ Tarde (12:00 - 18:00)\n\nDigite 1 ou 2:", service.Name)
}

var periodChoices = []string{"1. Manhã (08:00 - 12:00)", "2. Tarde (12:00 - 18:00)"}

func datePrompt(p availability.Period) string {
	return fmt.Sprintf("✅ Período selecionado: *%s*\n\nQual data você prefere? (formato: DD/MM/YYYY)", p.Label())
}

func noSlots(p availability.Period, date string) string {
	return fmt.Sprintf("❌ Desculpe, não há horários disponíveis na %s para a data %s. Por favor, escolha outra data.", strings.ToLower(p.Label()), date)
}

func slotsList(date string, p availability.Period, slots []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Data selecionada: *%s*\n\n📋 *Horários disponíveis na %s:*\n\n", date, strings.ToLower(p.Label()))
	for i, t := range slots {
		fmt.Fprintf(&b, "%d. %s\n", i+1, t)
	}
	b.WriteString("\nDigite o número do horário desejado:")
	return b.String()
}

func slotChoices(slots []string) []string {
	out := make([]string, 0, len(slots))
	for i, t := range slots {
		out = append(out, fmt.Sprintf("%d. %s", i+1, t))
	}
	return out
}

var confirmChoices = []string{"sim", "não"}

func summary(name, phone string, svc catalog.ServiceOffering, date, at string, p availability.Period) string {
	return fmt.Sprintf("📅 *Resumo do Agendamento:*\n\n"+
		"👤 Nome: %s\n📱 Telefone: %s\n🦷 Serviço: %s\n📆 Data: %s\n⏰ Horário: %s\n🕐 Período: %s\n💰 Valor: R$ %s\n\n"+
		"Confirma este agendamento? (sim/não)",
		name, phone, svc.Name, date, at, p.Label(), FormatPrice(svc.Price))
}

func confirmedSaved(remoteID string, svc catalog.ServiceOffering, date, at string) string {
	return fmt.Sprintf("✅ *Agendamento Confirmado!*\n\nSeu agendamento foi registrado com sucesso!\n\n"+
		"📋 ID: %s\n🦷 Serviço: %s\n📆 Data: %s\n⏰ Horário: %s\n\nObrigado por escolher nossos serviços! 😊",
		remoteID, svc.Name, date, at)
}

func confirmedUnsaved(svc catalog.ServiceOffering, date, at string) string {
	return fmt.Sprintf("⚠️ *Agendamento Confirmado!*\n\nSeu agendamento foi confirmado, mas houve um erro ao registrar no sistema. "+
		"Por favor, entre em contato conosco.\n\n📋 Detalhes:\n🦷 Serviço: %s\n📆 Data: %s\n⏰ Horário: %s",
		svc.Name, date, at)
}
