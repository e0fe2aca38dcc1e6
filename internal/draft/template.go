package draft

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/christopherklint97/meetr/internal/fullhour"
)

// DefaultTemplate is used when no template file exists.
const DefaultTemplate = `Subject: Request to shift meeting start time to :05

Dear {ORGANIZER},

I hope this message finds you well. I'm reaching out regarding our upcoming meeting:

Meeting: {SUBJECT}
Current Start Time: {START_TIME}

Would it be possible to shift the meeting start time by 5 minutes to {NEW_START_TIME}? This small adjustment would help create a buffer between back-to-back meetings and allow for better preparation time.

If this change works for you and other attendees, I would greatly appreciate it. If the current time is critical, please feel free to keep it as scheduled.

Thank you for considering this request.

Best regards
`

// DefaultSubject is used when a template has no subject line.
const DefaultSubject = "Request to shift meeting start time to :05"

const (
	startLayout    = "Monday, January 02, 2006 15:04"
	newStartLayout = "15:04"
)

// Template is a parsed reschedule email template.
type Template struct {
	Subject string
	Body    string
}

// Message is a rendered draft ready to hand to a Drafter.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Drafter saves a message as a draft without sending it and returns the
// draft's identifier.
type Drafter interface {
	CreateDraft(ctx context.Context, msg Message) (string, error)
}

// ParseTemplate splits raw into a subject and body. The first line supplies
// the subject when it has the form "Subject: <text>"; otherwise the whole
// text is the body and DefaultSubject applies.
func ParseTemplate(raw string) Template {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	first, rest, _ := strings.Cut(raw, "\n")
	if subject, ok := strings.CutPrefix(first, "Subject:"); ok {
		return Template{
			Subject: strings.TrimSpace(subject),
			Body:    strings.TrimLeft(rest, "\n"),
		}
	}
	return Template{Subject: DefaultSubject, Body: raw}
}

// LoadTemplate reads the template at path. A missing or unreadable file
// falls back to DefaultTemplate; the returned error is informational only.
func LoadTemplate(path string) (Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		tpl := ParseTemplate(DefaultTemplate)
		if os.IsNotExist(err) {
			return tpl, nil
		}
		return tpl, fmt.Errorf("reading email template: %w", err)
	}
	return ParseTemplate(string(data)), nil
}

// Render fills the template placeholders for c, addressed to its organizer.
func (t Template) Render(c fullhour.Candidate) Message {
	organizer := c.Entry.OrganizerName
	if organizer == "" {
		organizer = c.Entry.OrganizerEmail
	}
	if organizer == "" {
		organizer = "Organizer"
	}

	r := strings.NewReplacer(
		"{ORGANIZER}", organizer,
		"{SUBJECT}", c.Entry.Subject,
		"{START_TIME}", c.LocalStart.Format(startLayout),
		"{NEW_START_TIME}", c.NewStart().Format(newStartLayout),
	)
	return Message{
		To:      c.Entry.OrganizerEmail,
		Subject: r.Replace(t.Subject),
		Body:    r.Replace(t.Body),
	}
}

// Create renders c with t and saves it through d. Candidates whose
// organizer has no email address cannot be drafted.
func Create(ctx context.Context, d Drafter, t Template, c fullhour.Candidate) (string, error) {
	msg := t.Render(c)
	return CreateMessage(ctx, d, msg)
}

// CreateMessage saves an already rendered (possibly edited) message.
func CreateMessage(ctx context.Context, d Drafter, msg Message) (string, error) {
	if msg.To == "" {
		return "", fmt.Errorf("meeting organizer has no email address")
	}
	id, err := d.CreateDraft(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("creating draft: %w", err)
	}
	return id, nil
}

// FormatStart formats a meeting start the way the template shows it.
func FormatStart(t time.Time) string {
	return t.Format(startLayout)
}
