package services

import (
	"context"
	"fmt"
	"html"
	"strings"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"

	"alfredoptarigan/job-agent/internal/models"
)

const maxNotifiedJobs = 10

// Notifier tells a user what a finished run left for them.
type Notifier interface {
	RunFinished(ctx context.Context, profile *models.Profile, summary *models.RunSummary) error
}

type telegramNotifier struct {
	bot    *tele.Bot
	logger *zap.Logger
}

// NewTelegramNotifier creates an offline bot: it only sends, never polls.
func NewTelegramNotifier(token string, logger *zap.Logger) (Notifier, error) {
	b, err := tele.NewBot(tele.Settings{
		Token:   token,
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return &telegramNotifier{bot: b, logger: logger.Named("telegram")}, nil
}

func (n *telegramNotifier) RunFinished(ctx context.Context, profile *models.Profile, summary *models.RunSummary) error {
	if profile == nil || profile.TelegramChatID == 0 {
		return nil
	}
	if summary.JobsAnalyzed == 0 && summary.JobsApplied == 0 {
		return nil
	}

	msg := FormatRunMessage(summary)
	if _, err := n.bot.Send(&tele.Chat{ID: profile.TelegramChatID}, msg, tele.ModeHTML, tele.NoPreview); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	n.logger.Debug("run notification sent", zap.String("user_id", summary.UserID))
	return nil
}

// FormatRunMessage renders an HTML summary listing jobs awaiting review
// and jobs applied to.
func FormatRunMessage(summary *models.RunSummary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>Job agent run finished</b>\n")
	fmt.Fprintf(&sb, "Found %d, analyzed %d, applied %d, skipped %d, failed %d\n",
		summary.JobsDiscovered, summary.JobsAnalyzed, summary.JobsApplied, summary.JobsSkipped, summary.JobsFailed)
	if summary.Degraded {
		fmt.Fprintf(&sb, "<i>Unavailable sources: %s</i>\n", html.EscapeString(strings.Join(summary.DegradedSources, ", ")))
	}

	listed := 0
	for _, job := range summary.Jobs {
		if job.Status != models.StatusAnalyzed && job.Status != models.StatusApplied {
			continue
		}
		if listed == maxNotifiedJobs {
			fmt.Fprintf(&sb, "\n…and more in your history.")
			break
		}
		label := "review"
		if job.Status == models.StatusApplied {
			label = "applied"
		}
		fmt.Fprintf(&sb, "\n• [%s] <a href=\"%s\">%s</a> at %s (%.0f%%)",
			label,
			html.EscapeString(job.URL),
			html.EscapeString(job.Title),
			html.EscapeString(job.Company),
			job.FitScore*100,
		)
		listed++
	}
	return sb.String()
}
