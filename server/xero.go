package server

import (
	"errors"
	"net/http"

	"github.com/xhad/docbot/pkg/xero"
)

// authErrorMessage is shown for every OAuth or Xero API failure.
const authErrorMessage = "Error occurred during authentication"

type xeroPage struct {
	Title        string
	XeroEnabled  bool
	Error        string
	LoginURL     string
	Connections  []xero.Connection
	ShowInvoices bool
	Invoices     []xero.Invoice
}

func (s *Server) requireXero(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.xero == nil {
			http.Error(w, "Xero is not configured", http.StatusNotFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) xeroPage() xeroPage {
	return xeroPage{Title: "Xero invoices", XeroEnabled: true}
}

// handleXeroAuth is both the entry page and the OAuth redirect target.
func (s *Server) handleXeroAuth(w http.ResponseWriter, r *http.Request) {
	page := s.xeroPage()

	res, err := s.xero.Authorize(w, r)
	if err != nil {
		page.Error = authErrorMessage
		s.render(w, http.StatusUnauthorized, "xero.html", page)
		return
	}
	if res.Connected {
		s.redirect(w, r, "/xero/invoices")
		return
	}

	page.LoginURL = res.LoginURL
	s.render(w, http.StatusOK, "xero.html", page)
}

func (s *Server) handleXeroInvoices(w http.ResponseWriter, r *http.Request) {
	page := s.xeroPage()

	invoices, conns, err := s.xero.Invoices(w, r)
	switch {
	case errors.Is(err, xero.ErrNotConnected):
		s.redirect(w, r, "/xero")
		return
	case errors.Is(err, xero.ErrTenantSelection):
		page.Connections = conns
		s.render(w, http.StatusOK, "xero.html", page)
		return
	case err != nil:
		page.Error = authErrorMessage
		s.render(w, http.StatusBadGateway, "xero.html", page)
		return
	}

	page.ShowInvoices = true
	page.Invoices = invoices
	s.render(w, http.StatusOK, "xero.html", page)
}

func (s *Server) handleXeroTenant(w http.ResponseWriter, r *http.Request) {
	if err := s.xero.SelectTenant(w, r, r.FormValue("tenant_id")); err != nil {
		page := s.xeroPage()
		page.Error = authErrorMessage
		s.render(w, http.StatusBadRequest, "xero.html", page)
		return
	}
	s.redirect(w, r, "/xero/invoices")
}

func (s *Server) handleXeroLogout(w http.ResponseWriter, r *http.Request) {
	s.xero.Logout(w)
	s.redirect(w, r, "/xero")
}
