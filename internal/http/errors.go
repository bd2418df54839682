package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/fyrsmithlabs/bellaqa/internal/apperr"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Client-facing messages. Upstream error text is logged, never returned.
const (
	msgRetrievalFailed  = "関連情報の検索に失敗しました。しばらくしてから再度お試しください。"
	msgGenerationFailed = "回答の生成に失敗しました。しばらくしてから再度お試しください。"
	msgTimeout          = "回答に時間がかかりすぎました。もう一度お試しください。"
	msgUnavailable      = "サービスを利用できません。"
	msgInternal         = "内部エラーが発生しました。"
	msgInvalidBody      = "リクエストの形式が正しくありません。"
)

// Outcome labels for the ask counter.
const (
	outcomeOK         = "ok"
	outcomeValidation = "validation"
	outcomeRetrieval  = "retrieval"
	outcomeGeneration = "generation"
	outcomeTimeout    = "timeout"
	outcomeInternal   = "internal"
)

// classify maps a pipeline error to its status code, client message and
// outcome label.
func classify(err error) (status int, message, outcome string) {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, msgTimeout, outcomeTimeout
	}

	var ae *apperr.Error
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		msg := msgInvalidBody
		if errors.As(err, &ae) && ae.Err != nil {
			msg = ae.Err.Error()
		}
		return http.StatusBadRequest, msg, outcomeValidation
	case apperr.KindRetrieval:
		return http.StatusBadGateway, msgRetrievalFailed, outcomeRetrieval
	case apperr.KindGeneration:
		return http.StatusBadGateway, msgGenerationFailed, outcomeGeneration
	case apperr.KindConfiguration:
		return http.StatusServiceUnavailable, msgUnavailable, outcomeInternal
	default:
		return http.StatusInternalServerError, msgInternal, outcomeInternal
	}
}

// errorHandler renders every error that escapes a handler, including
// routing errors and recovered panics, as an ErrorResponse.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := msgInternal

	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if m, ok := he.Message.(string); ok {
			message = m
		} else {
			message = http.StatusText(status)
		}
	}

	body := ErrorResponse{Error: message, RequestID: requestID(c)}
	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(status)
	} else {
		writeErr = c.JSON(status, body)
	}
	if writeErr != nil {
		s.logger.Warn(c.Request().Context(), "failed to write error response", zap.Error(writeErr))
	}
}
