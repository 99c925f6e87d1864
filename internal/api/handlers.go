package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"social-support-workers/internal/assessment/pipeline"
	commonerrors "social-support-workers/internal/common/errors"
	"social-support-workers/internal/common/validation"
	"social-support-workers/internal/service"
)

const maxBodyBytes = 32 << 20

// decodeValidated checks the body against schema before decoding it into dst.
func decodeValidated(r *http.Request, schema map[string]interface{}, dst interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return commonerrors.NewInvalidInputError(fmt.Sprintf("read body: %v", err))
	}

	var doc interface{}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return commonerrors.NewInvalidInputError(fmt.Sprintf("invalid JSON: %v", err))
	}

	result, err := validation.Validate(schema, doc)
	if err != nil {
		return commonerrors.NewInternalError(err)
	}
	if !result.Valid {
		return commonerrors.NewApplicationValidationFailedError(result.Error())
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return commonerrors.NewInvalidInputError(err.Error())
	}
	return nil
}

func (s *Server) submitApplication(w http.ResponseWriter, r *http.Request) {
	var in pipeline.ApplicationInput
	if err := decodeValidated(r, validation.ApplicationSchema, &in); err != nil {
		s.writeError(w, err)
		return
	}

	sub, err := s.applications.Submit(r.Context(), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) chatbot(w http.ResponseWriter, r *http.Request) {
	var req service.ChatRequest
	if err := decodeValidated(r, validation.ChatSchema, &req); err != nil {
		s.writeError(w, err)
		return
	}

	resp, err := s.chat.Reply(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
