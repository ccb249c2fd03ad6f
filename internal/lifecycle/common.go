// Package lifecycle implements the object lifecycle engine (§4.4): per-kind
// create/put/patch/revert/delete/start/stop semantics plus the
// zero-downtime cargo update protocol and the reconciler's per-kind
// teardown/bring-up actions, grounded on original_source's
// utils/container/cargo.rs and utils/cargo.rs.
package lifecycle

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nanocl-io/nanocld/internal/domain"
	"github.com/nanocl-io/nanocld/internal/nerr"
)

// newSpec marshals data into a fresh, timestamped spec history row.
func newSpec(kindKey string, data interface{}) (domain.Spec, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return domain.Spec{}, nerr.Internal("marshal spec data", err)
	}
	return domain.Spec{
		ID:        uuid.NewString(),
		KindKey:   kindKey,
		Version:   "v1",
		Data:      raw,
		CreatedAt: time.Now(),
	}, nil
}

func buildEvent(kind domain.EventKind, action, reason, node string, actor domain.EventActor, note string) domain.Event {
	return domain.Event{
		Kind:                 kind,
		Action:               action,
		Reason:               reason,
		ReportingController:  "nanocld",
		ReportingNode:        node,
		Actor:                &actor,
		Note:                 note,
		At:                   time.Now(),
	}
}
