package web

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/pippinlabs/go-pippin/pkg/pipeline"
	"github.com/pippinlabs/go-pippin/pkg/tts"
)

// chunkView is the wire shape of one chunk's state.
type chunkView struct {
	Ordinal   int    `json:"ordinal"`
	Status    string `json:"status"`
	WordCount int    `json:"word_count"`
	AudioSize int    `json:"audio_size,omitempty"`
}

// responseView is the wire shape of a pipeline response.
type responseView struct {
	RunID      string      `json:"run_id"`
	SessionID  string      `json:"session_id"`
	Admission  string      `json:"admission"`
	Transcript string      `json:"transcript,omitempty"`
	Text       string      `json:"text"`
	Fallback   bool        `json:"fallback,omitempty"`
	Chunks     []chunkView `json:"chunks,omitempty"`
	Timings    timingsView `json:"timings"`
}

type timingsView struct {
	RecognizeMs  int64 `json:"recognize_ms"`
	GenerateMs   int64 `json:"generate_ms"`
	FirstAudioMs int64 `json:"first_audio_ms"`
	TotalMs      int64 `json:"total_ms"`
}

func viewOf(resp *pipeline.Response) responseView {
	v := responseView{
		RunID:      resp.RunID,
		SessionID:  resp.SessionID,
		Admission:  resp.Admission.String(),
		Transcript: resp.Transcript,
		Text:       resp.Text,
		Fallback:   resp.Fallback,
		Timings: timingsView{
			RecognizeMs:  resp.Timings.Recognize.Milliseconds(),
			GenerateMs:   resp.Timings.Generate.Milliseconds(),
			FirstAudioMs: resp.Timings.FirstAudio.Milliseconds(),
			TotalMs:      resp.Timings.Total.Milliseconds(),
		},
	}
	for _, c := range resp.Chunks() {
		cv := chunkView{
			Ordinal:   c.Ordinal,
			Status:    c.Status().String(),
			WordCount: c.WordCount,
		}
		if audio := c.Audio(); audio != nil {
			cv.AudioSize = len(audio.Audio)
		}
		v.Chunks = append(v.Chunks, cv)
	}
	return v
}

// handleUtterance processes one utterance. The request body is raw audio;
// voice parameters come from the query string.
func (s *Server) handleUtterance(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	audio := c.Body()

	profile := tts.DefaultVoiceProfile()
	if voice := c.Query("voice"); voice != "" {
		profile.VoiceID = voice
	}
	if speed := c.QueryFloat("speed"); speed > 0 {
		profile.Speed = speed
	}

	ctx, cancel := context.WithTimeout(c.Context(), 60*time.Second)
	defer cancel()

	resp, err := s.coord.ProcessUtterance(ctx, sessionID, audio, profile)
	if err != nil {
		if errors.Is(err, pipeline.ErrEmptyAudio) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "audio body required",
			})
		}
		s.logger.Error("utterance failed", "session", sessionID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "pipeline unavailable",
		})
	}
	return c.JSON(viewOf(resp))
}

// handleInterrupt handles a barge-in for the session.
func (s *Server) handleInterrupt(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	interrupted := s.coord.Interrupt(sessionID)
	return c.JSON(fiber.Map{
		"session_id":  sessionID,
		"interrupted": interrupted,
	})
}

// handleEndSession removes the session and cancels its in-flight work.
func (s *Server) handleEndSession(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	s.coord.EndSession(sessionID)
	return c.SendStatus(fiber.StatusNoContent)
}

// handleMetrics reports average stage timings over recent runs.
func (s *Server) handleMetrics(c *fiber.Ctx) error {
	avg := s.coord.Metrics()
	return c.JSON(fiber.Map{
		"recognize_ms":   avg.Recognize.Milliseconds(),
		"safety_ms":      avg.Safety.Milliseconds(),
		"memory_ms":      avg.Memory.Milliseconds(),
		"generate_ms":    avg.Generate.Milliseconds(),
		"first_audio_ms": avg.FirstAudio.Milliseconds(),
		"total_ms":       avg.Total.Milliseconds(),
	})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}
