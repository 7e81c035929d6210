package notifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/leadflow/internal/domain"
	"github.com/bytedance/sonic"
)

const whatsappJIDSuffix = "@s.whatsapp.net"

// WhatsApp sends messages through the WhatsApp bot HTTP API.
type WhatsApp struct {
	baseURL string
	client  *http.Client
	lawyers []string
}

// NewWhatsApp creates a bot client. lawyers are phone numbers that receive
// a lead alert in addition to the visitor confirmation.
func NewWhatsApp(baseURL string, timeout time.Duration, lawyers []string) *WhatsApp {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WhatsApp{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		lawyers: lawyers,
	}
}

type sendMessageRequest struct {
	PhoneNumber string `json:"phone_number"`
	Message     string `json:"message"`
}

type sendMessageResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Send delivers message to phone. phone may be raw digits or a full JID.
func (w *WhatsApp) Send(ctx context.Context, phone, message string) error {
	jid := phone
	if !strings.HasSuffix(jid, whatsappJIDSuffix) {
		jid = FormatBrazilianPhone(phone) + whatsappJIDSuffix
	}

	body, err := sonic.Marshal(sendMessageRequest{PhoneNumber: jid, Message: message})
	if err != nil {
		return fmt.Errorf("encode whatsapp request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/send-message", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build whatsapp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("read whatsapp response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("whatsapp send failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out sendMessageResponse
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decode whatsapp response: %w", err)
	}
	if !out.Success {
		if out.Error == "" {
			out.Error = "unknown error"
		}
		return fmt.Errorf("whatsapp api error: %s", out.Error)
	}
	slog.Info("WhatsApp message sent", "to", maskPhone(jid))
	return nil
}

// Notify sends the confirmation to the visitor and an alert to each lawyer.
func (w *WhatsApp) Notify(ctx context.Context, lead domain.LeadSnapshot) error {
	var errs []error
	if err := w.Send(ctx, lead.Phone, ConfirmationMessage(lead)); err != nil {
		errs = append(errs, fmt.Errorf("visitor confirmation: %w", err))
	}
	alert := LawyerAlert(lead)
	for _, lawyer := range w.lawyers {
		if err := w.Send(ctx, lawyer, alert); err != nil {
			errs = append(errs, fmt.Errorf("lawyer alert %s: %w", maskPhone(lawyer), err))
		}
	}
	return errors.Join(errs...)
}

// Ping checks the bot's health endpoint.
func (w *WhatsApp) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp health: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("whatsapp health: status %d", resp.StatusCode)
	}
	return nil
}

// FormatBrazilianPhone returns the number as 55 + DDD + subscriber number,
// adding the mobile ninth digit to 8-digit numbers starting with 6-9.
func FormatBrazilianPhone(phone string) string {
	digits := onlyDigits(phone)
	if digits == "" {
		return ""
	}
	// Only strip the country code when what remains is still a full number.
	if strings.HasPrefix(digits, "55") && len(digits) >= 12 {
		digits = digits[2:]
	}

	switch len(digits) {
	case 10:
		ddd, number := digits[:2], digits[2:]
		if strings.ContainsRune("6789", rune(number[0])) {
			number = "9" + number
		}
		return "55" + ddd + number
	default:
		return "55" + digits
	}
}

type areaCopy struct {
	expertise string
	urgency   string
	benefit   string
}

var areaMessages = map[string]areaCopy{
	"penal": {
		expertise: "Nossa equipe especializada em Direito Penal já resolveu centenas de casos similares",
		urgency:   "Sabemos que situações criminais precisam de atenção IMEDIATA",
		benefit:   "proteger seus direitos e buscar o melhor resultado possível",
	},
	"saude": {
		expertise: "Nossos advogados especialistas em Direito da Saúde têm experiência em ações contra planos",
		urgency:   "Questões de saúde não podem esperar",
		benefit:   "garantir seu tratamento e obter as coberturas devidas",
	},
	"other": {
		expertise: "Nossa equipe jurídica experiente",
		urgency:   "Sua situação precisa de atenção especializada",
		benefit:   "alcançar a solução mais eficaz para seu caso",
	},
}

// AreaKey classifies a free-text legal area as penal, saude or other.
func AreaKey(area string) string {
	a := strings.ToLower(area)
	for _, w := range []string{"penal", "criminal", "crime"} {
		if strings.Contains(a, w) {
			return "penal"
		}
	}
	for _, w := range []string{"saude", "saúde", "plano", "medic"} {
		if strings.Contains(a, w) {
			return "saude"
		}
	}
	return "other"
}

// ConfirmationMessage is the WhatsApp message sent to the visitor.
func ConfirmationMessage(lead domain.LeadSnapshot) string {
	area := lead.Decision.Area
	if _, ok := areaMessages[area]; !ok {
		area = AreaKey(lead.Answers[domain.AnswerLegalArea])
	}
	msgs := areaMessages[area]

	return fmt.Sprintf("🚀 %s, uma excelente notícia!\n\n"+
		"✅ Seu atendimento foi priorizado no sistema m.lima.\n\n"+
		"%s e já foi notificada sobre seu caso.\n\n"+
		"🎯 %s, por isso um advogado experiente entrará em contato com você nos próximos minutos.\n\n"+
		"Você fez a escolha certa ao confiar no m.lima para %s.\n\n"+
		"⏰ Aguarde nossa ligação!\n\n"+
		"---\n✉️ m.lima Advogados Associados",
		lead.FirstName(), msgs.expertise, msgs.urgency, msgs.benefit)
}

// LawyerAlert is the internal alert sent to the lawyers on duty.
func LawyerAlert(lead domain.LeadSnapshot) string {
	priority := lead.Decision.Priority
	if priority == "" {
		priority = "normal"
	}
	return fmt.Sprintf("⚖️ Novo lead (%s, score %d)\n\n"+
		"👤 %s\n📱 %s\n📂 %s\n📝 %s\n\nSessão: %s",
		priority, lead.Score,
		lead.Name(), FormatBrazilianPhone(lead.Phone),
		lead.Answers[domain.AnswerLegalArea],
		lead.Answers[domain.AnswerDetails],
		lead.SessionID)
}

func onlyDigits(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func maskPhone(phone string) string {
	if len(phone) <= 6 {
		return "***"
	}
	return phone[:6] + "***"
}
