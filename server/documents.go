package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/xhad/docbot/pkg/extract"
	"github.com/xhad/docbot/pkg/llm"
	"github.com/xhad/docbot/pkg/loader"
	"github.com/xhad/docbot/pkg/render"
	"github.com/xhad/docbot/pkg/session"
	"go.uber.org/zap"
)

type indexPage struct {
	Title       string
	XeroEnabled bool
	Types       []extract.DocType
	Selected    extract.DocType
	MaxUploadMB int
	Busy        bool
	FreeForm    bool
	Document    string
	Warning     string
	Error       string
	Fields      []render.FieldView
	Ready       bool
	Answer      string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	s.renderIndex(w, http.StatusOK, sess, "")
}

func (s *Server) renderIndex(w http.ResponseWriter, status int, sess session.Session, notice string) {
	page := indexPage{
		Title:       "PDF-CHAT Bot",
		XeroEnabled: s.xero != nil,
		Types:       extract.Types(),
		Selected:    sess.DocType,
		MaxUploadMB: s.config.MaxUploadMB,
		Busy:        sess.Busy(),
		FreeForm:    sess.DocType == extract.AskYourPDF,
		Document:    sess.Document,
		Error:       notice,
	}

	switch sess.State {
	case session.Rejected:
		page.Warning = userMessage(sess.Err, sess.DocType)
	case session.Failed:
		page.Error = userMessage(sess.Err, sess.DocType)
	case session.Rendered:
		s.fillResult(&page, sess)
	}

	s.render(w, status, "index.html", page)
}

func (s *Server) fillResult(page *indexPage, sess session.Session) {
	out := sess.Outcome
	if out == nil {
		return
	}
	if out.Record == nil {
		page.Ready = out.Retriever != nil
		page.Answer = out.Answer
		return
	}

	tmpl, err := extract.Lookup(out.Type)
	if err != nil {
		page.Error = userMessage(err, out.Type)
		return
	}
	fields, err := render.Form(tmpl, out.Record)
	if err != nil {
		page.Warning = userMessage(err, out.Type)
		return
	}
	page.Fields = fields
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	docType := extract.DocType(r.FormValue("doc_type"))

	updated, err := s.sessions.Select(sess.ID, docType)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, session.ErrBusy) {
			status = http.StatusConflict
			sess = updated
		}
		s.renderIndex(w, status, sess, userMessage(err, docType))
		return
	}
	s.redirect(w, r, "/")
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	maxBytes := int64(s.config.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		status, msg := s.uploadError(err)
		s.renderIndex(w, status, sess, msg)
		return
	}

	docType := extract.DocType(r.FormValue("doc_type"))
	if docType == "" {
		docType = sess.DocType
	}
	question := r.FormValue("question")

	file, header, err := r.FormFile("file")
	if err != nil {
		s.renderIndex(w, http.StatusBadRequest, sess, "Please choose a PDF file to upload.")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err == nil && int64(len(data)) > maxBytes {
		err = &http.MaxBytesError{Limit: maxBytes}
	}
	if err != nil {
		status, msg := s.uploadError(err)
		s.renderIndex(w, status, sess, msg)
		return
	}

	current, err := s.sessions.Begin(sess.ID, docType, header.Filename)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, session.ErrBusy) {
			status = http.StatusConflict
			sess = current
		}
		s.renderIndex(w, status, sess, userMessage(err, docType))
		return
	}

	outcome, runErr := s.extract(r, header.Filename, data, docType, question)
	if _, err := s.sessions.Finish(sess.ID, outcome, runErr); err != nil {
		s.logger.Error("failed to record extraction result", zap.String("session", sess.ID), zap.Error(err))
	}
	if runErr != nil && !errors.Is(runErr, extract.ErrDocTypeMismatch) {
		s.logger.Warn("extraction failed",
			zap.String("session", sess.ID),
			zap.String("document", header.Filename),
			zap.String("type", string(docType)),
			zap.Error(runErr))
	}

	s.redirect(w, r, "/")
}

func (s *Server) extract(r *http.Request, name string, data []byte, docType extract.DocType, question string) (*extract.Outcome, error) {
	doc, err := s.loader.Load(name, data)
	if err != nil {
		return nil, err
	}
	return s.extractor.Run(r.Context(), doc, docType, question)
}

// handleAsk answers a follow-up question without javascript.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	question := r.FormValue("question")

	lease, err := s.sessions.Lease(sess.ID)
	if err != nil {
		s.renderIndex(w, http.StatusConflict, sess, "Upload a PDF before asking a question.")
		return
	}
	defer lease.Release()

	if question == "" {
		s.redirect(w, r, "/")
		return
	}

	answer, err := s.extractor.Ask(r.Context(), lease.Retriever, question, nil)
	if err != nil {
		s.logger.Warn("question failed", zap.String("session", sess.ID), zap.Error(err))
		s.renderIndex(w, http.StatusOK, sess, userMessage(err, sess.DocType))
		return
	}
	lease.SetAnswer(answer)

	if current, err := s.sessions.Get(sess.ID); err == nil {
		sess = current
	}
	s.renderIndex(w, http.StatusOK, sess, "")
}

func (s *Server) uploadError(err error) (int, string) {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return http.StatusRequestEntityTooLarge,
			fmt.Sprintf("The file is too large. Uploads are limited to %d MB.", s.config.MaxUploadMB)
	}
	return http.StatusBadRequest, "The upload could not be read. Please try again."
}

// userMessage turns an error into the text shown on the page.
func userMessage(err error, docType extract.DocType) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, extract.ErrDocTypeMismatch):
		return fmt.Sprintf("This document does not look like a %s. Upload a different file or change the document type.", docType)
	case errors.Is(err, llm.ErrContextTooLong):
		return "The document is too long for the model. Please shorten the document and try again."
	case errors.Is(err, loader.ErrNotPDF):
		return "Please upload a PDF file."
	case errors.Is(err, loader.ErrEmptyFile):
		return "The uploaded file is empty."
	case errors.Is(err, session.ErrBusy):
		return "Your previous upload is still being processed."
	case errors.Is(err, extract.ErrUnknownDocType):
		return "Please choose one of the listed document types."
	default:
		return "Something went wrong while reading the document. Please try again."
	}
}
