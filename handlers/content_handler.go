package handlers

import (
	"net/http"

	"github.com/Dosada05/fractal-system/middleware"
	"github.com/Dosada05/fractal-system/services"
)

type ContentHandler struct {
	contentService services.ContentService
}

func NewContentHandler(cs services.ContentService) *ContentHandler {
	return &ContentHandler{contentService: cs}
}

// CreateProposalHandler обрабатывает POST /fractals/{fractalID}/proposals
func (h *ContentHandler) CreateProposalHandler(w http.ResponseWriter, r *http.Request) {
	memberID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to create a proposal")
		return
	}
	fractalID, err := getIDFromURL(r, "fractalID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input services.CreateProposalInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	input.FractalID = fractalID
	input.CreatorID = memberID

	proposal, err := h.contentService.CreateProposal(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"proposal": proposal}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// CreateCommentHandler обрабатывает POST /proposals/{proposalID}/comments
func (h *ContentHandler) CreateCommentHandler(w http.ResponseWriter, r *http.Request) {
	memberID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to comment")
		return
	}
	proposalID, err := getIDFromURL(r, "proposalID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input services.CreateCommentInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	input.ProposalID = proposalID
	input.CreatorID = memberID

	comment, err := h.contentService.CreateComment(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"comment": comment}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
