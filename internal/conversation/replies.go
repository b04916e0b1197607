package conversation

import (
	"fmt"
	"strings"

	"github.com/wolfman30/agendmed/internal/availability"
	"github.com/wolfman30/agendmed/internal/booking"
	"github.com/wolfman30/agendmed/internal/catalog"
)

const menuOptions = `Menu de opções:
1️⃣ Agendar consulta
2️⃣ Ver horários disponíveis
3️⃣ Informações sobre serviços
4️⃣ Falar com atendente

Digite o número da opção desejada.`

const (
	replyUnknown = "Desculpe, não entendi sua pergunta. 🤔\n\n" + menuOptions

	replyAttendant = "👨‍💼 *Falar com Atendente*\n\nUm atendente entrará em contato em breve!\n\n" +
		"Horário de atendimento:\n📞 Segunda a Sexta: 08:00 - 18:00\n📞 Sábado: 08:00 - 12:00\n\n" +
		"Obrigado por entrar em contato! 😊"

	replyDefaultHours = "📅 *Horários Disponíveis:*\n\n*Segunda a Sexta:*\n08:00 - 12:00\n14:00 - 18:00\n\n" +
		"*Sábado:*\n08:00 - 12:00\n\n" + bookHint

	replyServicesUnavailable = "⚠️ Não consegui carregar os serviços agora. Por favor, tente novamente em alguns instantes."
	replyNoServices          = "😕 No momento não há serviços cadastrados."
	replyCancelled           = "❌ Agendamento cancelado. Digite \"agendar\" se desejar tentar novamente."
	replyNothingToCancel     = "Você não possui nenhum agendamento em andamento. Digite \"agendar\" para começar."
	replyNoTenant            = "⚠️ Este número ainda não está vinculado a um consultório. Por favor, entre em contato com o atendimento."
	replyProcessingError     = "⚠️ Desculpe, ocorreu um erro ao processar sua mensagem. Por favor, tente novamente."

	bookHint = "Digite \"1\" para agendar uma consulta!"
)

var menuChoices = []string{
	"1. Agendar consulta",
	"2. Ver horários disponíveis",
	"3. Informações sobre serviços",
	"4. Falar com atendente",
}

func greeting(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Olá! 👋\n\nBem-vindo ao AgendMed.\n\nComo posso ajudá-lo?\n\n" + menuOptions
	}
	return fmt.Sprintf("Olá %s! 👋\n\nBem-vindo ao AgendMed.\n\nComo posso ajudá-lo?\n\n%s", name, menuOptions)
}

// hoursReply groups the tenant's configured hours by period.
func hoursReply(times []string) string {
	var b strings.Builder
	b.WriteString("📅 *Horários Disponíveis:*\n")
	listed := false
	for _, p := range []availability.Period{availability.Morning, availability.Afternoon} {
		slots := availability.FilterByPeriod(times, p)
		if len(slots) == 0 {
			continue
		}
		listed = true
		fmt.Fprintf(&b, "\n*%s:*\n%s\n", p.Label(), strings.Join(slots, ", "))
	}
	if !listed {
		return replyDefaultHours
	}
	b.WriteString("\n")
	b.WriteString(bookHint)
	return b.String()
}

func servicesReply(services []catalog.ServiceOffering) string {
	var b strings.Builder
	b.WriteString("🦷 *Nossos Serviços:*\n")
	for i, svc := range services {
		fmt.Fprintf(&b, "\n%d. *%s* - R$ %s\n   Duração: %d min\n", i+1, svc.Name, booking.FormatPrice(svc.Price), svc.DurationMinutes)
	}
	b.WriteString("\n")
	b.WriteString(bookHint)
	return b.String()
}
