package jobs

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/hyperjump/basho/internal/hub"
	"github.com/hyperjump/basho/internal/models"
	"github.com/hyperjump/basho/internal/store"
)

// OnSubscribe subscribes conn to requestID and replays what already happened.
// Unknown or expired requests get a not_found error and no subscription.
func (r *Runner) OnSubscribe(conn hub.Conn, requestID string) {
	if err := r.broker.Subscribe(requestID, conn); err != nil {
		r.logger.Debug("subscribe rejected", zap.String("request_id", requestID), zap.Error(err))
		return
	}
	if err := r.Replay(context.Background(), conn, requestID); err != nil {
		r.broker.Unsubscribe(requestID, conn)
	}
}

// Replay sends the stored outcome of requestID to conn. A finished request gets its final
// frames, a pending or streaming one gets its current status; live frames follow through the hub.
func (r *Runner) Replay(ctx context.Context, conn hub.Conn, requestID string) error {
	st, err := r.store.Get(ctx, requestID)
	if err != nil {
		code := models.ErrorCodeNotFound
		msg := "unknown or expired request"
		if !errors.Is(err, store.ErrNotFound) {
			code, msg = models.ErrorCodeNarration, "request state unavailable"
		}
		_ = conn.Send(models.StreamMessage{
			Type:      models.MessageError,
			RequestID: requestID,
			Error:     &models.StreamError{Code: code, Message: msg},
		})
		return err
	}

	for _, msg := range ReplayFrames(st) {
		msg.RequestID = requestID
		msg.Replay = true
		if err := conn.Send(msg); err != nil {
			return err
		}
	}
	return nil
}

// ReplayFrames returns the frames that reproduce the visible outcome of st.
func ReplayFrames(st *models.RequestState) []models.StreamMessage {
	status := models.StreamMessage{Type: models.MessageStatus, Status: st.Status}
	if !st.Status.Terminal() {
		return []models.StreamMessage{status}
	}
	switch st.Status {
	case models.StatusCompleted:
		out := st.Output
		if out == nil {
			out = &models.AssistantOutput{}
		}
		recs := st.Recommendations
		if recs == nil {
			recs = []models.Recommendation{}
		}
		return []models.StreamMessage{
			doneFrame(out),
			{Type: models.MessageRecommendation, Recommendations: recs},
			status,
		}
	case models.StatusFailed:
		frames := make([]models.StreamMessage, 0, 2)
		if st.Output != nil {
			code := models.ErrorCodeNarration
			if st.Output.Partial {
				code = models.ErrorCodeTimeout
			}
			frames = append(frames, models.StreamMessage{
				Type:  models.MessageError,
				Text:  st.Output.Text,
				Error: &models.StreamError{Code: code, Message: st.Error},
			})
		}
		return append(frames, status)
	default:
		return []models.StreamMessage{status}
	}
}
