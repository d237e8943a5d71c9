package handlers

import (
	"errors"
	"net/http"

	"github.com/Dosada05/fractal-system/middleware"
	"github.com/Dosada05/fractal-system/services"
)

type VoteHandler struct {
	voteService services.VoteService
}

func NewVoteHandler(vs services.VoteService) *VoteHandler {
	return &VoteHandler{voteService: vs}
}

type proposalVoteInput struct {
	Score int `json:"score"`
}

type commentVoteInput struct {
	Upvote *bool `json:"upvote"`
}

// VoteProposalHandler обрабатывает POST /proposals/{proposalID}/votes
func (h *VoteHandler) VoteProposalHandler(w http.ResponseWriter, r *http.Request) {
	memberID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to vote")
		return
	}
	proposalID, err := getIDFromURL(r, "proposalID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input proposalVoteInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	vote, err := h.voteService.VoteProposal(r.Context(), proposalID, memberID, input.Score)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"vote": vote}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// VoteCommentHandler обрабатывает POST /comments/{commentID}/votes
func (h *VoteHandler) VoteCommentHandler(w http.ResponseWriter, r *http.Request) {
	memberID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to vote")
		return
	}
	commentID, err := getIDFromURL(r, "commentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input commentVoteInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Upvote == nil {
		badRequestResponse(w, r, errors.New("upvote is required"))
		return
	}

	vote, err := h.voteService.VoteComment(r.Context(), commentID, memberID, *input.Upvote)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"vote": vote}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// VoteRepresentativeHandler обрабатывает POST /groups/{groupID}/representative-votes
func (h *VoteHandler) VoteRepresentativeHandler(w http.ResponseWriter, r *http.Request) {
	memberID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to vote")
		return
	}
	groupID, err := getIDFromURL(r, "groupID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input services.RepresentativeVoteInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	input.GroupID = groupID
	input.VoterID = memberID

	vote, err := h.voteService.VoteRepresentative(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"vote": vote}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
