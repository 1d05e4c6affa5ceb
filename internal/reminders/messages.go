package reminders

import (
	"fmt"
	"strings"
	"time"

	"dues-backend/internal/models"
	"dues-backend/internal/reconcile"

	"github.com/shopspring/decimal"
)

// summaryLimit caps the member list in one Slack message.
const summaryLimit = 20

// Notice is the member data a reminder needs.
type Notice struct {
	MemberID  uint
	Name      string
	Email     string
	Class     string
	AmountDue decimal.Decimal
	Status    models.PaymentStatus
	DueDate   *time.Time
}

func NoticeFor(m *models.Member) Notice {
	return Notice{
		MemberID:  m.ID,
		Name:      m.Name,
		Email:     m.Email,
		Class:     m.ClassName(),
		AmountDue: m.Outstanding(),
		Status:    m.PaymentStatus,
		DueDate:   m.DueDate,
	}
}

func header(text string) Block {
	return Block{"type": "header", "text": Block{"type": "plain_text", "text": text, "emoji": true}}
}

func markdown(text string) Block {
	return Block{"type": "section", "text": Block{"type": "mrkdwn", "text": text}}
}

func fields(pairs ...string) Block {
	fs := make([]Block, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		fs = append(fs, Block{"type": "mrkdwn", "text": fmt.Sprintf("*%s:*\n%s", pairs[i], pairs[i+1])})
	}
	return Block{"type": "section", "fields": fs}
}

func footer(text string) Block {
	return Block{"type": "context", "elements": []Block{{"type": "mrkdwn", "text": text}}}
}

func divider() Block { return Block{"type": "divider"} }

func usd(d decimal.Decimal) string { return "$" + d.StringFixed(2) }

// ReminderMessage is the individual payment reminder.
func ReminderMessage(n Notice, now time.Time) Message {
	urgency, icon := "REMINDER", ":moneybag:"
	if n.Status == models.PaymentOverdue {
		urgency, icon = "OVERDUE", ":rotating_light:"
	}

	info := []string{
		"Member", n.Name,
		"Email", n.Email,
		"Amount Due", usd(n.AmountDue),
		"Status", string(n.Status),
	}
	if d := models.FormatDate(n.DueDate); d != nil {
		info = append(info, "Due Date", *d)
	}

	return Message{
		Text: fmt.Sprintf("%s: %s has %s in dues %s", urgency, n.Name, usd(n.AmountDue), strings.ToLower(string(n.Status))),
		Blocks: []Block{
			header(fmt.Sprintf("%s %s: Dues Payment Needed", icon, urgency)),
			fields(info...),
			divider(),
			footer("Sent on " + now.Format("January 2, 2006 at 3:04 PM")),
		},
	}
}

// SummaryMessage lists unpaid members in one message.
func SummaryMessage(title string, notices []Notice, now time.Time) Message {
	total := decimal.Zero
	overdue := 0
	lines := make([]string, 0, summaryLimit+1)
	for i, n := range notices {
		total = total.Add(n.AmountDue)
		if n.Status == models.PaymentOverdue {
			overdue++
		}
		if i < summaryLimit {
			class := n.Class
			if class == "" {
				class = "N/A"
			}
			lines = append(lines, fmt.Sprintf("• *%s* (%s): %s - _%s_", n.Name, class, usd(n.AmountDue), n.Status))
		}
	}
	if len(notices) > summaryLimit {
		lines = append(lines, fmt.Sprintf("_...and %d more members_", len(notices)-summaryLimit))
	}

	return Message{
		Text: fmt.Sprintf("%s: %d members owe %s", title, len(notices), usd(total)),
		Blocks: []Block{
			header(":bar_chart: " + title),
			markdown(fmt.Sprintf("*Summary:* %d members have outstanding dues totaling *%s*\n\nOverdue: %d members\nPending: %d members",
				len(notices), usd(total), overdue, len(notices)-overdue)),
			divider(),
			markdown("*Members with Unpaid Dues:*\n" + strings.Join(lines, "\n")),
			footer("Sent on " + now.Format("January 2, 2006 at 3:04 PM")),
		},
	}
}

func StatsMessage(s *reconcile.Stats, now time.Time) Message {
	return Message{
		Text: fmt.Sprintf("Weekly summary: %s collected, %s outstanding", usd(s.TotalCollected), usd(s.Outstanding)),
		Blocks: []Block{
			header(":chart_with_upwards_trend: Weekly Financial Summary"),
			fields(
				"Total Members", fmt.Sprint(s.TotalMembers),
				"Paid Members", fmt.Sprint(s.PaidMembers),
				"Total Collected", usd(s.TotalCollected),
				"Outstanding", usd(s.Outstanding),
			),
			markdown(fmt.Sprintf("*Collection Rate:* %s%%", s.CollectionRate.StringFixed(1))),
			footer("Week ending " + now.Format("January 2, 2006")),
		},
	}
}

func DeadlineMessage(days, unpaid int, outstanding decimal.Decimal) Message {
	urgency := "Reminder"
	if days <= 1 {
		urgency = "URGENT"
	} else if days <= 3 {
		urgency = "Soon"
	}
	return Message{
		Text: fmt.Sprintf("%s: %d days until deadline - %d members unpaid", urgency, days, unpaid),
		Blocks: []Block{
			header(fmt.Sprintf(":alarm_clock: %s: Payment Deadline Approaching", urgency)),
			markdown(fmt.Sprintf("*%d days* until payment deadline\n\n*%d members* still need to pay\n*%s* outstanding",
				days, unpaid, usd(outstanding))),
			footer("Consider sending individual reminders to unpaid members"),
		},
	}
}
