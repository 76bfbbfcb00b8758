package mailbox

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"net/smtp"
	"sort"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	id "github.com/emersion/go-imap-id"
	_ "github.com/emersion/go-message/charset"
	"github.com/mailpilot/agent/internal/database/models"
)

var (
	// ErrIMAPConnectionFailed indicates IMAP connection or login failed
	ErrIMAPConnectionFailed = errors.New("IMAP connection failed")
	// ErrFetchFailed indicates the unseen-message fetch failed
	ErrFetchFailed = errors.New("fetch failed")
)

const connectionTimeout = 10 * time.Second

// Message is one email fetched from the inbox. Immutable once fetched.
type Message struct {
	Subject       string
	SenderAddress string
	SenderName    string // display name, may be empty
	Body          string // text/plain part
	HTMLBody      string // text/html part, fallback when Body is empty
	Seen          bool
}

// Gateway is the I/O boundary to the mailbox: fetching unseen messages and
// sending replies. The cycle runner only knows this interface.
type Gateway interface {
	// FetchUnseen retrieves at most limit unseen messages, most recent first.
	// Fetching marks the messages seen; they will not be returned again even
	// if the reply later fails.
	FetchUnseen(account *models.Account, password string, limit int) ([]Message, error)

	// SendReply sends a plain-text reply with the subject prefixed "Re: ".
	// Returns false on any delivery failure; the cause is logged, not returned.
	SendReply(account *models.Account, password, to, origSubject, body string) bool

	// CheckLogin verifies the credentials with a live IMAP login
	CheckLogin(account *models.Account, password string) error
}

// IMAPGateway talks IMAP for retrieval and SMTP for submission
type IMAPGateway struct{}

// NewIMAPGateway creates the production mail gateway
func NewIMAPGateway() *IMAPGateway {
	return &IMAPGateway{}
}

// connect establishes an authenticated IMAP connection
func (g *IMAPGateway) connect(account *models.Account, password string) (*client.Client, error) {
	addr := fmt.Sprintf("%s:%d", account.IMAPHost, account.IMAPPort)
	dialer := &net.Dialer{Timeout: connectionTimeout}

	var c *client.Client
	if account.UseSSL {
		tlsConfig := &tls.Config{ServerName: account.IMAPHost}
		conn, err := tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIMAPConnectionFailed, err)
		}
		c, err = client.New(conn)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: %v", ErrIMAPConnectionFailed, err)
		}
	} else {
		conn, err := dialer.Dial("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIMAPConnectionFailed, err)
		}
		c, err = client.New(conn)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: %v", ErrIMAPConnectionFailed, err)
		}
	}

	c.Timeout = 2 * time.Minute

	// Some providers require client identification before login
	if ok, _ := c.Support("ID"); ok {
		idClient := id.NewClient(c)
		_, _ = idClient.ID(id.ID{
			id.FieldName:    "Mail Pilot",
			id.FieldVersion: "1.0.0",
		})
	}

	if err := c.Login(account.Email, password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("%w: login failed: %v", ErrIMAPConnectionFailed, err)
	}

	return c, nil
}

// CheckLogin verifies the credentials with a live IMAP login
func (g *IMAPGateway) CheckLogin(account *models.Account, password string) error {
	c, err := g.connect(account, password)
	if err != nil {
		return err
	}
	c.Logout()
	return nil
}

// FetchUnseen retrieves at most limit unseen messages, most recent first,
// marking them seen as a side effect of reading the body section.
func (g *IMAPGateway) FetchUnseen(account *models.Account, password string, limit int) ([]Message, error) {
	c, err := g.connect(account, password)
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	mbox, err := c.Select("INBOX", false)
	if err != nil {
		return nil, fmt.Errorf("%w: select INBOX: %v", ErrFetchFailed, err)
	}
	if mbox.Messages == 0 {
		return nil, nil
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	seqNums, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("%w: search unseen: %v", ErrFetchFailed, err)
	}
	if len(seqNums) == 0 {
		return nil, nil
	}

	// Keep only the most recent messages
	if limit > 0 && len(seqNums) > limit {
		seqNums = seqNums[len(seqNums)-limit:]
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(seqNums...)

	// Fetching the body section without Peek sets the \Seen flag
	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	ch := make(chan *imap.Message, len(seqNums))
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqSet, items, ch)
	}()

	var fetched []*imap.Message
	for msg := range ch {
		if msg != nil && msg.Envelope != nil {
			fetched = append(fetched, msg)
		}
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	// Most recent first
	sort.Slice(fetched, func(i, j int) bool {
		return fetched[i].SeqNum > fetched[j].SeqNum
	})

	messages := make([]Message, 0, len(fetched))
	for _, msg := range fetched {
		m := Message{
			Subject: msg.Envelope.Subject,
			Seen:    true,
		}
		if len(msg.Envelope.From) > 0 {
			from := msg.Envelope.From[0]
			m.SenderAddress = fmt.Sprintf("%s@%s", from.MailboxName, from.HostName)
			m.SenderName = from.PersonalName
		}
		for _, literal := range msg.Body {
			parseBody(literal, &m)
		}
		messages = append(messages, m)
	}

	log.Printf("[Mailbox] Fetched %d unseen messages for %s", len(messages), account.Email)
	return messages, nil
}

// SendReply composes a plain-text reply and submits it over SMTP. Any failure
// is logged for operator visibility and reported as false, never as an error.
func (g *IMAPGateway) SendReply(account *models.Account, password, to, origSubject, body string) bool {
	content := buildReply(account.Email, to, origSubject, body)

	if err := g.sendViaSMTP(account, password, to, content); err != nil {
		log.Printf("[Mailbox] Failed to send reply to %s: %v", to, err)
		return false
	}

	log.Printf("[Mailbox] Reply sent to %s", to)
	return true
}

// buildReply assembles the RFC 5322 text of the reply
func buildReply(from, to, origSubject, body string) string {
	headers := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: Re: %s\r\n"+
		"Date: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n",
		from, to, origSubject, time.Now().Format(time.RFC1123Z))
	return headers + body + "\r\n"
}

// sendViaSMTP delivers the message, with implicit TLS on port 465 and
// STARTTLS otherwise.
func (g *IMAPGateway) sendViaSMTP(account *models.Account, password, to, content string) error {
	addr := fmt.Sprintf("%s:%d", account.SMTPHost, account.SMTPPort)
	auth := smtp.PlainAuth("", account.Email, password, account.SMTPHost)

	var smtpClient *smtp.Client
	if account.SMTPPort == 465 {
		tlsConfig := &tls.Config{ServerName: account.SMTPHost}
		conn, err := tls.DialWithDialer(&net.Dialer{Timeout: connectionTimeout}, "tcp", addr, tlsConfig)
		if err != nil {
			return fmt.Errorf("SMTPS dial failed: %v", err)
		}
		smtpClient, err = smtp.NewClient(conn, account.SMTPHost)
		if err != nil {
			conn.Close()
			return fmt.Errorf("SMTP client failed: %v", err)
		}
	} else {
		var err error
		smtpClient, err = smtp.Dial(addr)
		if err != nil {
			return fmt.Errorf("SMTP dial failed: %v", err)
		}
		if ok, _ := smtpClient.Extension("STARTTLS"); ok {
			tlsConfig := &tls.Config{ServerName: account.SMTPHost}
			if err := smtpClient.StartTLS(tlsConfig); err != nil {
				smtpClient.Close()
				return fmt.Errorf("STARTTLS failed: %v", err)
			}
		}
	}
	defer smtpClient.Close()

	if err := smtpClient.Auth(auth); err != nil {
		return fmt.Errorf("authentication failed: %v", err)
	}
	if err := smtpClient.Mail(account.Email); err != nil {
		return fmt.Errorf("MAIL FROM failed: %v", err)
	}
	if err := smtpClient.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO failed: %v", err)
	}

	w, err := smtpClient.Data()
	if err != nil {
		return fmt.Errorf("DATA failed: %v", err)
	}
	if _, err := w.Write([]byte(content)); err != nil {
		return fmt.Errorf("write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close failed: %v", err)
	}

	// 邮件已发送成功，忽略 Quit 的错误
	smtpClient.Quit()
	return nil
}
