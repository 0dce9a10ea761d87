package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"lexaudit/internal/ledger/models"
	"lexaudit/internal/privacy"
	dErrors "lexaudit/pkg/domain-errors"
)

var histogramKeys = map[string]privacy.KeyFunc{
	"statute":    privacy.ByStatute,
	"event_type": privacy.ByEventType,
	"result":     privacy.ByResultKind,
}

// RecordQuery is the parsed filter of GET /ledger/records.
type RecordQuery struct {
	Statute  string
	Subject  uuid.UUID
	From     time.Time
	To       time.Time
	HasRange bool
}

func parseRecordQuery(r *http.Request) (RecordQuery, error) {
	v := r.URL.Query()
	var q RecordQuery
	filters := 0

	if s := v.Get("statute"); s != "" {
		q.Statute = s
		filters++
	}
	if s := v.Get("subject"); s != "" {
		id, err := parseUUID(s, "subject")
		if err != nil {
			return RecordQuery{}, err
		}
		q.Subject = id
		filters++
	}
	from, to := v.Get("from"), v.Get("to")
	if from != "" || to != "" {
		if from == "" || to == "" {
			return RecordQuery{}, dErrors.New(dErrors.CodeBadRequest, "from and to must be given together")
		}
		var err error
		if q.From, err = time.Parse(time.RFC3339, from); err != nil {
			return RecordQuery{}, dErrors.New(dErrors.CodeBadRequest, "from must be RFC 3339")
		}
		if q.To, err = time.Parse(time.RFC3339, to); err != nil {
			return RecordQuery{}, dErrors.New(dErrors.CodeBadRequest, "to must be RFC 3339")
		}
		if q.To.Before(q.From) {
			return RecordQuery{}, dErrors.New(dErrors.CodeBadRequest, "to must not be before from")
		}
		q.HasRange = true
		filters++
	}
	if filters > 1 {
		return RecordQuery{}, dErrors.New(dErrors.CodeBadRequest, "use only one of statute, subject or from/to")
	}
	return q, nil
}

func parseCountQuery(r *http.Request) (privacy.Predicate, string, error) {
	v := r.URL.Query()
	statute := v.Get("statute")
	eventType := models.EventType(v.Get("event_type"))

	if eventType != "" {
		if !eventType.Valid() {
			return nil, "", dErrors.Newf(dErrors.CodeBadRequest, "unknown event_type %q", eventType)
		}
	}

	switch {
	case statute != "" && eventType != "":
		byStatute, byType := privacy.StatuteIs(statute), privacy.EventTypeIs(eventType)
		return func(rec models.AuditRecord) bool { return byStatute(rec) && byType(rec) },
			fmt.Sprintf("statute=%s event_type=%s", statute, eventType), nil
	case statute != "":
		return privacy.StatuteIs(statute), "statute=" + statute, nil
	case eventType != "":
		return privacy.EventTypeIs(eventType), "event_type=" + string(eventType), nil
	default:
		return privacy.All, "all records", nil
	}
}

func parseUUID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeBadRequest, "%s must be a UUID", field)
	}
	return id, nil
}
