// Package attendance reconciles recorded meeting instances against the
// configured batches and renders a per-batch participant report.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/punithbm/attendance-bot/internal/zoom"
)

// ErrFutureDate rejects report requests for dates that have not happened yet,
// before any network call is made.
var ErrFutureDate = errors.New("requested date is in the future")

// MeetingAPI is the slice of the Zoom client the reporter needs.
type MeetingAPI interface {
	Token(ctx context.Context) (string, error)
	PastMeetings(ctx context.Context, token, host string, from, to time.Time) ([]zoom.Meeting, error)
	Participants(ctx context.Context, token, meetingID string) ([]zoom.Participant, error)
}

// Reporter builds attendance reports for one host against a fixed batch table.
type Reporter struct {
	api      MeetingAPI
	batches  *BatchTable
	host     string
	loc      *time.Location // fixed reporting offset, e.g. UTC+5:30
	excluded map[string]struct{}
	log      *zap.Logger
	now      func() time.Time
}

// NewReporter wires a reporter. offsetMin is the reporting timezone offset in
// minutes east of UTC (330 for IST); excluded names (session hosts) never
// appear in the participant lists.
func NewReporter(api MeetingAPI, batches *BatchTable, host string, offsetMin int, excluded []string, log *zap.Logger) *Reporter {
	ex := make(map[string]struct{}, len(excluded))
	for _, name := range excluded {
		ex[name] = struct{}{}
	}
	return &Reporter{
		api:      api,
		batches:  batches,
		host:     host,
		loc:      time.FixedZone(fmt.Sprintf("UTC%+d:%02d", offsetMin/60, abs(offsetMin%60)), offsetMin*60),
		excluded: ex,
		log:      log,
		now:      func() time.Time { return time.Now() },
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// session is one matched instance with its deduplicated participant list.
type session struct {
	topic        string
	startLocal   time.Time
	participants []string
}

// Report renders the attendance report for the given local calendar date.
// A zero target means "today" in the reporting timezone. Degraded conditions
// (auth failure, nothing found) come back as user-facing strings; only
// invalid input is an error.
func (r *Reporter) Report(ctx context.Context, target time.Time) (string, error) {
	today := r.now().In(r.loc)
	if target.IsZero() {
		target = today
	}
	ty, tm, td := target.Date()
	ny, nm, nd := today.Date()
	if dateAfter(ty, tm, td, ny, nm, nd) {
		return "", fmt.Errorf("%w: %04d-%02d-%02d", ErrFutureDate, ty, tm, td)
	}

	token, err := r.api.Token(ctx)
	if err != nil {
		r.log.Error("zoom authentication failed", zap.Error(err))
		return "Failed to authenticate with Zoom. Please check the API credentials.", nil
	}

	// A session late in the UTC day lands on the next local calendar date, so
	// the fetch window starts one day early.
	targetUTC := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	meetings, err := r.api.PastMeetings(ctx, token, r.host, targetUTC.AddDate(0, 0, -1), targetUTC)
	if err != nil {
		if zoom.IsPermission(err) {
			r.log.Error("zoom report scope missing", zap.Error(err))
			return "Zoom rejected the request: the API credentials lack the report scope.", nil
		}
		r.log.Error("listing meetings failed", zap.Error(err))
		meetings = nil
	}

	dateLabel := fmt.Sprintf("%04d-%02d-%02d", ty, int(tm), td)
	if len(meetings) == 0 {
		return fmt.Sprintf(
			"No meetings found for %s. Either no session took place, the credentials lack report access, or host %s is not the meeting owner.",
			dateLabel, r.host), nil
	}

	byBatch := r.reconcile(ctx, token, meetings, ty, tm, td)
	if len(byBatch) == 0 {
		return fmt.Sprintf("No batch sessions found for %s.", dateLabel), nil
	}

	return r.render(dateLabel, byBatch), nil
}

// reconcile matches instances to batches, filters them to the target local
// date, and collects each survivor's deduplicated participant list.
func (r *Reporter) reconcile(ctx context.Context, token string, meetings []zoom.Meeting, ty int, tm time.Month, td int) map[string][]session {
	byBatch := make(map[string][]session)

	for _, m := range meetings {
		label, ok := r.batches.Match(m.ID.String())
		if !ok {
			label, ok = r.batches.MatchTopic(m.Topic)
		}
		if !ok {
			continue
		}

		local := m.StartTime.In(r.loc)
		ly, lm, ld := local.Date()
		if ly != ty || lm != tm || ld != td {
			continue
		}

		names, err := r.participantNames(ctx, token, m.InstanceID())
		if err != nil {
			// One batch's failure must not sink the rest of the report.
			r.log.Warn("participant fetch failed",
				zap.String("batch", label),
				zap.String("instance", m.InstanceID()),
				zap.Error(err))
			names = nil
		}

		byBatch[label] = append(byBatch[label], session{
			topic:        m.Topic,
			startLocal:   local,
			participants: names,
		})
	}

	return byBatch
}

// participantNames fetches, deduplicates and sorts an instance's attendee
// names, dropping the configured host names.
func (r *Reporter) participantNames(ctx context.Context, token, instanceID string) ([]string, error) {
	participants, err := r.api.Participants(ctx, token, instanceID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(participants))
	var names []string
	for _, p := range participants {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			continue
		}
		if _, excluded := r.excluded[name]; excluded {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (r *Reporter) render(dateLabel string, byBatch map[string][]session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Attendance Report for %s**\n\n", dateLabel)

	labels := make([]string, 0, len(byBatch))
	for label := range byBatch {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	for _, label := range labels {
		fmt.Fprintf(&b, "**%s**\n", label)
		for _, s := range byBatch[label] {
			fmt.Fprintf(&b, "_%s (%s)_\n", s.topic, s.startLocal.Format("03:04 PM"))
			if len(s.participants) == 0 {
				b.WriteString("No participants found.\n")
				continue
			}
			for _, name := range s.participants {
				fmt.Fprintf(&b, "- %s\n", name)
			}
		}
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

func dateAfter(y1 int, m1 time.Month, d1, y2 int, m2 time.Month, d2 int) bool {
	if y1 != y2 {
		return y1 > y2
	}
	if m1 != m2 {
		return m1 > m2
	}
	return d1 > d2
}
