package services

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/huangang/teamspace/internal/config"
	"github.com/huangang/teamspace/internal/models"
)

// smtpSink is a minimal SMTP server that records each DATA payload.
type smtpSink struct {
	host string
	port int
	data chan string
}

func newSMTPSink(t *testing.T) *smtpSink {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	addr := ln.Addr().(*net.TCPAddr)
	sink := &smtpSink{host: "127.0.0.1", port: addr.Port, data: make(chan string, 4)}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go sink.serve(conn)
		}
	}()
	return sink
}

func (s *smtpSink) serve(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	r := bufio.NewReader(conn)
	reply := func(line string) { conn.Write([]byte(line + "\r\n")) }

	reply("220 sink ESMTP")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			reply("250 sink")
		case strings.HasPrefix(cmd, "MAIL"), strings.HasPrefix(cmd, "RCPT"), strings.HasPrefix(cmd, "RSET"), strings.HasPrefix(cmd, "NOOP"):
			reply("250 OK")
		case cmd == "DATA":
			reply("354 go ahead")
			var msg strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				msg.WriteString(l)
			}
			s.data <- msg.String()
			reply("250 queued")
		case cmd == "QUIT":
			reply("221 bye")
			return
		default:
			reply("502 not implemented")
		}
	}
}

func (s *smtpSink) next(t *testing.T) string {
	t.Helper()
	select {
	case msg := <-s.data:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("no message reached the SMTP server")
		return ""
	}
}

func headerLines(msg string) []string {
	head, _, _ := strings.Cut(msg, "\r\n\r\n")
	return strings.Split(head, "\r\n")
}

func TestRenderEmail_Mention(t *testing.T) {
	body, err := renderEmail(TemplateMention, map[string]string{
		"SenderName":   "Alice",
		"ProjectTitle": "Apollo",
		"Preview":      "<b>hi</b> @bob",
		"AppURL":       "https://teamspace.example.com",
	})
	if err != nil {
		t.Fatalf("renderEmail() error = %v", err)
	}
	if !strings.Contains(body, "Alice mentioned you in Apollo") {
		t.Error("body should contain the headline")
	}
	if strings.Contains(body, "<b>hi</b>") {
		t.Error("preview must be HTML-escaped")
	}
	if !strings.Contains(body, "https://teamspace.example.com") {
		t.Error("body should link to the app")
	}
}

func TestRenderEmail_UnknownTemplate(t *testing.T) {
	if _, err := renderEmail("nope", nil); err == nil {
		t.Error("expected error for unknown template")
	}
}

func TestEmailService_UnconfiguredIsNoop(t *testing.T) {
	svc := NewEmailService(&config.EmailConfig{Enabled: false})
	if svc.IsConfigured() {
		t.Error("disabled email should not be configured")
	}
	if err := svc.Send(context.Background(), "a@example.com", "s", TemplateMention, nil); err != nil {
		t.Errorf("Send() on unconfigured service should be a no-op, got %v", err)
	}
}

func TestEmailService_ProcessEmailTaskUnreachable(t *testing.T) {
	svc := NewEmailService(&config.EmailConfig{Enabled: true, Host: "127.0.0.1", Port: 1, From: "teamspace@example.com"})
	err := svc.ProcessEmailTask(context.Background(), &EmailTask{
		To:       "a@example.com",
		Subject:  "s",
		Template: TemplateMention,
		Data:     map[string]string{"SenderName": "A"},
	})
	if err == nil {
		t.Error("expected delivery error for unreachable SMTP host")
	}
}

func TestEmailService_MentionHeadersStaySingleLine(t *testing.T) {
	sink := newSMTPSink(t)
	db := setupTestDB(t)
	alice := createUser(t, db, "alice", "")
	bob := createUser(t, db, "bob", "")
	// Rows written before titles were validated can still carry line breaks.
	project := models.Project{Title: "Apollo\r\nBcc: attacker@evil.test", CreatedBy: alice.ID}
	if err := db.Create(&project).Error; err != nil {
		t.Fatalf("create project: %v", err)
	}

	queue := &recordingQueue{}
	notifications := NewNotificationService(db, nil, queue, 120)
	recipient := RosterEntry{UserID: bob.ID, DisplayName: "bob", Email: bob.Email}
	if err := notifications.NotifyMention(context.Background(), recipient, "alice\nX-Evil: 1", project.Title, "hi @bob"); err != nil {
		t.Fatalf("NotifyMention() error = %v", err)
	}
	if len(queue.tasks) != 1 {
		t.Fatalf("enqueued %d email tasks, expected 1", len(queue.tasks))
	}

	svc := NewEmailService(&config.EmailConfig{Enabled: true, Host: sink.host, Port: sink.port, From: "Teamspace <teamspace@example.com>"})
	if err := svc.ProcessEmailTask(context.Background(), queue.tasks[0]); err != nil {
		t.Fatalf("ProcessEmailTask() error = %v", err)
	}

	subjects := 0
	for _, line := range headerLines(sink.next(t)) {
		lower := strings.ToLower(line)
		if strings.HasPrefix(lower, "bcc:") || strings.HasPrefix(lower, "x-evil:") {
			t.Errorf("unexpected header line %q", line)
		}
		if strings.HasPrefix(line, "Subject: ") {
			subjects++
			if !strings.Contains(line, "Apollo") || !strings.Contains(line, "Bcc") {
				t.Errorf("Subject = %q, expected the title folded into one line", line)
			}
		}
	}
	if subjects != 1 {
		t.Errorf("found %d Subject headers, expected 1", subjects)
	}
}

func TestEmailService_RejectsAddressWithLineBreak(t *testing.T) {
	sink := newSMTPSink(t)
	svc := NewEmailService(&config.EmailConfig{Enabled: true, Host: sink.host, Port: sink.port, From: "teamspace@example.com"})

	err := svc.Send(context.Background(), "bob@example.com\r\nBcc: attacker@evil.test", "hello", TemplateMention, nil)
	if err == nil {
		t.Fatal("expected error for recipient with a line break")
	}
	select {
	case msg := <-sink.data:
		t.Errorf("nothing should be delivered, got %q", msg)
	default:
	}
}

func TestEncodeSubject(t *testing.T) {
	tests := []struct {
		name     string
		subject  string
		expected string
	}{
		{"ascii", "alice mentioned you in Apollo", "alice mentioned you in Apollo"},
		{"line break dropped", "Apollo\r\nBcc: x", "ApolloBcc: x"},
		{"utf-8 encoded", "été", "=?utf-8?q?=C3=A9t=C3=A9?="},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := encodeSubject(tt.subject); got != tt.expected {
				t.Errorf("encodeSubject(%q) = %q, expected %q", tt.subject, got, tt.expected)
			}
		})
	}
}
