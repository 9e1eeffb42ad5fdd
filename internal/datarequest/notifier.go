package datarequest

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/privacyops/dsar/internal/directory"
	"github.com/privacyops/dsar/internal/metrics"
	"github.com/privacyops/dsar/internal/notify"
)

// notifier sends the officer and result notifications of a request.
type notifier struct {
	dir         directory.Directory
	officers    *Officers
	gateway     notify.Gateway
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	siteName    string
	requestsURL string
}

// notifyOfficers sends r to every current officer. Each send is independent;
// a failed one becomes a warning on the outcome.
func (n *notifier) notifyOfficers(ctx context.Context, r *DataRequest) (*Outcome, error) {
	requester, err := n.dir.GetUser(ctx, r.RequestedBy)
	if err != nil {
		return nil, fmt.Errorf("get requester %s: %w", r.RequestedBy, err)
	}
	subject := requester
	if r.SubjectID != r.RequestedBy {
		if subject, err = n.dir.GetUser(ctx, r.SubjectID); err != nil {
			return nil, fmt.Errorf("get subject %s: %w", r.SubjectID, err)
		}
	}
	dpoIDs, err := n.officers.List(ctx)
	if err != nil {
		return nil, err
	}

	out := &Outcome{Result: true}
	for _, id := range dpoIDs {
		dpo, err := n.dir.GetUser(ctx, id)
		if err == nil {
			err = n.gateway.Send(ctx, dpoMessage(r, dpo, requester, subject, n.requestsURL))
		}
		if err != nil {
			n.metrics.IncrementDPONotificationFailure()
			n.logger.Warn().Err(err).
				Str("request_id", r.ID).
				Str("dpo_id", id).
				Msg("failed to notify data protection officer")
			name := id
			if dpo != nil {
				name = dpo.FullName
			}
			out.warn(NewWarning(id, "", WarningSendingToDPO, name))
		}
	}
	return out, nil
}

type recipient struct {
	id       string
	delivery Delivery
}

// notifyResult tells the subject, and the requester when different, that r
// has been carried out. Both are reached on the channel of the request type.
func (n *notifier) notifyResult(ctx context.Context, r *DataRequest, s typeStrategy, link string) *Outcome {
	out := &Outcome{Result: true}
	if s.Delivery == DeliveryNone {
		return out
	}

	var from string
	if r.DPOID != nil {
		from = *r.DPOID
	}
	body := s.ResultBody(n.siteName)

	recipients := []recipient{{r.SubjectID, s.Delivery}}
	if r.OnBehalf() {
		recipients = append(recipients, recipient{r.RequestedBy, s.Delivery})
	}

	for _, rc := range recipients {
		user, err := n.dir.GetUser(ctx, rc.id)
		if err == nil {
			msg := resultMessage(r, from, user, body, link)
			if rc.delivery == DeliveryEmailOnly {
				err = n.gateway.SendEmailOnly(ctx, msg)
			} else {
				err = n.gateway.Send(ctx, msg)
			}
		}
		if err != nil {
			n.logger.Warn().Err(err).
				Str("request_id", r.ID).
				Str("user_id", rc.id).
				Msg("failed to notify user of request result")
			name := rc.id
			if user != nil {
				name = user.FullName
			}
			out.warn(NewWarning(rc.id, "", WarningNotifyingUser, name))
		}
	}
	return out
}
