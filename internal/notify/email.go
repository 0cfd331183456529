package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/mail"
	"strings"
	"sync"
	"time"

	"gopkg.in/gomail.v2"

	"share_runner/internal/config"
	"share_runner/internal/logbus"
)

type sendFunc func(ctx context.Context, cfg config.EmailConfig, events []Event) error

// EmailNotifier 把事件攒成一批再发，避免一轮 sweep 发出几十封邮件。
type EmailNotifier struct {
	cfg  config.EmailConfig
	bus  *logbus.Bus
	send sendFunc

	mu     sync.Mutex
	queue  chan Event
	ctx    context.Context
	cancel func()
	wg     sync.WaitGroup

	summaryWindow time.Duration
	maxBatch      int
}

func NewEmailNotifier(cfg config.EmailConfig, bus *logbus.Bus) *EmailNotifier {
	return newEmailNotifier(cfg, bus, SendSummaryEmail)
}

func newEmailNotifier(cfg config.EmailConfig, bus *logbus.Bus, send sendFunc) *EmailNotifier {
	ctx, cancel := context.WithCancel(context.Background())
	n := &EmailNotifier{
		cfg:           cfg,
		bus:           bus,
		send:          send,
		queue:         make(chan Event, 200),
		ctx:           ctx,
		cancel:        cancel,
		summaryWindow: cfg.SummaryWindow(),
		maxBatch:      80,
	}
	n.wg.Add(1)
	go n.loop()
	return n
}

func (n *EmailNotifier) Close(ctx context.Context) error {
	n.mu.Lock()
	cancel := n.cancel
	n.cancel = nil
	n.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *EmailNotifier) Notify(_ context.Context, evt Event) {
	if evt.At <= 0 {
		evt.At = time.Now().UnixMilli()
	}
	select {
	case n.queue <- evt:
	default:
		if n.bus != nil {
			n.bus.Log("warn", "email notification dropped: queue full", map[string]any{
				"kind":    string(evt.Kind),
				"account": evt.AccountIndex,
			})
		}
	}
}

func (n *EmailNotifier) loop() {
	defer n.wg.Done()

	var (
		pending []Event
		timer   *time.Timer
		timerCh <-chan time.Time
	)

	stopTimer := func() {
		if timer == nil {
			return
		}
		timer.Stop()
		timer = nil
		timerCh = nil
	}

	flush := func(reason string) {
		stopTimer()
		if len(pending) == 0 {
			return
		}
		events := append([]Event(nil), pending...)
		pending = pending[:0]
		n.handleBatch(reason, events)
	}

	for {
		select {
		case <-n.ctx.Done():
			// 退出前把队列里剩下的也带上
			for {
				select {
				case evt := <-n.queue:
					pending = append(pending, evt)
					continue
				default:
				}
				break
			}
			flush("shutdown")
			return
		case evt := <-n.queue:
			pending = append(pending, evt)
			if n.maxBatch > 0 && len(pending) >= n.maxBatch {
				flush("max")
				continue
			}
			if n.summaryWindow <= 0 {
				flush("immediate")
				continue
			}
			if timer == nil {
				timer = time.NewTimer(n.summaryWindow)
				timerCh = timer.C
			}
		case <-timerCh:
			timer = nil
			timerCh = nil
			flush("window")
		}
	}
}

func (n *EmailNotifier) handleBatch(reason string, events []Event) {
	if !n.cfg.Enabled {
		return
	}
	if err := validateEmailConfig(n.cfg); err != nil {
		if n.bus != nil {
			n.bus.Log("warn", "invalid email settings", map[string]any{"error": err.Error()})
		}
		return
	}
	// ctx 可能已取消（shutdown），发送用独立的超时
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := n.send(ctx, n.cfg, events); err != nil {
		if n.bus != nil {
			n.bus.Log("warn", "email send failed", map[string]any{
				"error":  err.Error(),
				"count":  len(events),
				"reason": reason,
			})
		}
		return
	}
	if n.bus != nil {
		n.bus.Log("info", "notification email sent", map[string]any{
			"count":  len(events),
			"reason": reason,
			"to":     strings.TrimSpace(n.cfg.Email),
		})
	}
}

func validateEmailConfig(c config.EmailConfig) error {
	email := strings.TrimSpace(c.Email)
	if email == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return errors.New("invalid email")
	}
	if strings.TrimSpace(c.AuthCode) == "" {
		return errors.New("authCode is required")
	}
	return nil
}

func SendSummaryEmail(ctx context.Context, cfg config.EmailConfig, events []Event) error {
	if err := validateEmailConfig(cfg); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(events) == 0 {
		return errors.New("no events")
	}

	email := strings.TrimSpace(cfg.Email)
	host, port, useSSL, err := smtpConfigForEmail(email)
	if err != nil {
		return err
	}
	htmlBody, textBody, err := buildSummaryBody(events)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", msg.FormatAddress(email, "share runner"))
	msg.SetHeader("To", email)
	msg.SetHeader("Subject", buildSummarySubject(events))
	msg.SetBody("text/plain", textBody)
	msg.AddAlternative("text/html", htmlBody)

	d := gomail.NewDialer(host, port, email, strings.TrimSpace(cfg.AuthCode))
	d.SSL = useSSL
	return d.DialAndSend(msg)
}

func smtpConfigForEmail(email string) (host string, port int, useSSL bool, err error) {
	_, domain, ok := strings.Cut(strings.TrimSpace(email), "@")
	domain = strings.ToLower(strings.TrimSpace(domain))
	if !ok || domain == "" || strings.Contains(domain, "@") {
		return "", 0, false, errors.New("invalid email format")
	}

	switch {
	case domain == "gmail.com" || strings.HasSuffix(domain, ".gmail.com"):
		return "smtp.gmail.com", 587, false, nil
	case domain == "outlook.com" || domain == "hotmail.com" || domain == "live.com":
		return "smtp.office365.com", 587, false, nil
	case domain == "qq.com" || domain == "foxmail.com":
		return "smtp.qq.com", 465, true, nil
	case domain == "163.com" || domain == "126.com" || domain == "yeah.net":
		return "smtp.163.com", 465, true, nil
	default:
		return "smtp." + domain, 465, true, nil
	}
}

func buildSummarySubject(events []Event) string {
	counts := map[EventKind]int{}
	for _, e := range events {
		counts[e.Kind]++
	}
	var parts []string
	if c := counts[EventMissionCompleted]; c > 0 {
		parts = append(parts, fmt.Sprintf("%d missions completed", c))
	}
	if c := counts[EventTokenExpired]; c > 0 {
		parts = append(parts, fmt.Sprintf("%d tokens expired", c))
	}
	if c := counts[EventShareFailed]; c > 0 {
		parts = append(parts, fmt.Sprintf("%d shares failed", c))
	}
	if len(parts) == 0 {
		return "share runner summary"
	}
	return "share runner: " + strings.Join(parts, ", ")
}

var summaryHTMLTpl = template.Must(template.New("summary").Parse(`<!doctype html>
<html>
  <body style="font-family:-apple-system,'Segoe UI',Roboto,Arial,sans-serif;background:#f6f8fb;">
    <div style="max-width:720px;margin:0 auto;padding:24px;">
      <div style="font-size:14px;color:#111827;">{{ .Total }} events, {{ .Start }} ~ {{ .End }}</div>
      <table cellspacing="0" cellpadding="0" border="0" style="width:100%;margin-top:12px;border-collapse:collapse;">
        <tr>
          <th style="text-align:left;padding:8px;font-size:12px;">Time</th>
          <th style="text-align:left;padding:8px;font-size:12px;">Event</th>
          <th style="text-align:left;padding:8px;font-size:12px;">Account</th>
          <th style="text-align:left;padding:8px;font-size:12px;">Detail</th>
        </tr>
        {{ range .Rows }}
        <tr>
          <td style="padding:8px;font-size:12px;">{{ .At }}</td>
          <td style="padding:8px;font-size:12px;">{{ .Kind }}</td>
          <td style="padding:8px;font-size:12px;">{{ .Account }}</td>
          <td style="padding:8px;font-size:12px;">{{ .Detail }}</td>
        </tr>
        {{ end }}
      </table>
    </div>
  </body>
</html>
`))

type summaryRow struct {
	At      string
	Kind    string
	Account string
	Detail  string
}

func buildSummaryBody(events []Event) (htmlBody string, textBody string, err error) {
	if len(events) == 0 {
		return "", "", errors.New("no events")
	}

	rows := make([]summaryRow, 0, len(events))
	var minAt, maxAt time.Time
	for i, evt := range events {
		at := time.UnixMilli(evt.At)
		if i == 0 || at.Before(minAt) {
			minAt = at
		}
		if i == 0 || at.After(maxAt) {
			maxAt = at
		}
		detail := strings.TrimSpace(evt.Message)
		if evt.MissionID != "" {
			detail = strings.TrimSpace("mission " + evt.MissionID + " " + detail)
		}
		rows = append(rows, summaryRow{
			At:      at.Format("2006-01-02 15:04:05"),
			Kind:    string(evt.Kind),
			Account: fmt.Sprintf("#%d %s", evt.AccountIndex, evt.TokenPrefix),
			Detail:  detail,
		})
	}

	data := struct {
		Total int
		Start string
		End   string
		Rows  []summaryRow
	}{
		Total: len(events),
		Start: minAt.Format("2006-01-02 15:04:05"),
		End:   maxAt.Format("2006-01-02 15:04:05"),
		Rows:  rows,
	}

	var buf bytes.Buffer
	if err := summaryHTMLTpl.Execute(&buf, data); err != nil {
		return "", "", err
	}

	text := new(strings.Builder)
	fmt.Fprintf(text, "%d events, %s ~ %s\n", data.Total, data.Start, data.End)
	for _, r := range rows {
		fmt.Fprintf(text, "- %s | %s | %s | %s\n", r.At, r.Kind, r.Account, r.Detail)
	}
	return buf.String(), text.String(), nil
}
