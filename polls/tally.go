package polls

import (
	"context"
	"errors"

	"github.com/troydota/api.vote.komodohype.dev/utils"
)

// Tally commits admitted votes. It is the only writer of vote counters.
type Tally struct {
	store Store
}

func NewTally(store Store) *Tally {
	return &Tally{store: store}
}

// Apply records the vote and bumps the option and poll counters in one storage
// transaction, returning the poll as it stands after the commit. Conflicts
// found at commit time (a racing duplicate, the poll closing or being deleted)
// fail the whole bundle and are reported with their admission kind.
func (t *Tally) Apply(ctx context.Context, adm *Admission) (*Poll, error) {
	if adm == nil {
		return nil, errors.New("tally: nil admission")
	}

	id, err := utils.GenerateToken(12)
	if err != nil {
		return nil, transient("vote id", err)
	}

	req := adm.Request
	vote := &Vote{
		ID:          id,
		PollID:      req.PollID,
		OptionID:    req.OptionID,
		IP:          req.IP,
		Fingerprint: req.Fingerprint,
		UserAgent:   req.UserAgent,
		CreatedAt:   adm.AdmittedAt,
	}

	token := ""
	if adm.Private {
		token = req.Token
	}

	poll, err := t.store.RecordVote(ctx, vote, token)
	if err != nil {
		switch KindOf(err) {
		case KindNotFound:
			return nil, &Error{Kind: KindNotFound, Message: "poll or option removed", Err: err}
		case KindClosed:
			return nil, &Error{Kind: KindClosed, Message: "poll closed before the vote was recorded", Err: err}
		case KindDuplicateDevice:
			return nil, &Error{Kind: KindDuplicateDevice, Message: errDuplicateDevice.Message, Err: err}
		case KindDuplicateIP:
			return nil, &Error{Kind: KindDuplicateIP, Message: errDuplicateIP.Message, Err: err}
		case KindUnauthorized:
			return nil, &Error{Kind: KindUnauthorized, Message: errUnauthorized.Message, Err: err}
		}
		return nil, transient("vote not recorded", err)
	}
	return poll, nil
}
