package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Dosada05/fractal-system/middleware"
	"github.com/Dosada05/fractal-system/models"
	"github.com/Dosada05/fractal-system/services"
)

type FractalHandler struct {
	fractalService    services.FractalService
	tournamentService services.TournamentService
	treeService       services.TreeService
}

func NewFractalHandler(fs services.FractalService, ts services.TournamentService, trees services.TreeService) *FractalHandler {
	return &FractalHandler{
		fractalService:    fs,
		tournamentService: ts,
		treeService:       trees,
	}
}

// CreateHandler обрабатывает POST /fractals
func (h *FractalHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	var input services.CreateFractalInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	fractal, err := h.fractalService.CreateFractal(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"fractal": fractal}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetByIDHandler обрабатывает GET /fractals/{fractalID}
func (h *FractalHandler) GetByIDHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "fractalID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	fractal, err := h.fractalService.GetFractal(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"fractal": fractal}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListHandler обрабатывает GET /fractals?status=&limit=&offset=
func (h *FractalHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var filter services.ListFractalsInput

	if s := query.Get("status"); s != "" {
		status := models.FractalStatus(s)
		switch status {
		case models.FractalStatusWaiting, models.FractalStatusInProgress, models.FractalStatusClosed:
			filter.Status = &status
		default:
			badRequestResponse(w, r, errors.New("invalid status filter"))
			return
		}
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			badRequestResponse(w, r, errors.New("invalid limit parameter"))
			return
		}
		filter.Limit = limit
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			badRequestResponse(w, r, errors.New("invalid offset parameter"))
			return
		}
		filter.Offset = offset
	}

	fractals, err := h.fractalService.ListFractals(r.Context(), filter)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if fractals == nil {
		fractals = []models.Fractal{}
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"fractals": fractals}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListRoundsHandler обрабатывает GET /fractals/{fractalID}/rounds
func (h *FractalHandler) ListRoundsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "fractalID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	rounds, err := h.fractalService.ListRounds(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if rounds == nil {
		rounds = []models.Round{}
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"rounds": rounds}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// JoinHandler обрабатывает POST /fractals/{fractalID}/join.
// Тело запроса описывает участника платформы (telegram, discord, web).
func (h *FractalHandler) JoinHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "fractalID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var info models.MemberInfo
	if err := readJSON(w, r, &info); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	member, err := h.fractalService.JoinFractal(r.Context(), id, info)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"member": member}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// LeaveHandler обрабатывает POST /fractals/{fractalID}/leave
func (h *FractalHandler) LeaveHandler(w http.ResponseWriter, r *http.Request) {
	memberID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to leave a fractal")
		return
	}
	id, err := getIDFromURL(r, "fractalID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.fractalService.LeaveFractal(r.Context(), id, memberID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// StartHandler обрабатывает POST /fractals/{fractalID}/start
func (h *FractalHandler) StartHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "fractalID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	round, err := h.fractalService.StartFractal(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"round": round}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// CloseRoundHandler обрабатывает POST /fractals/{fractalID}/rounds/close.
// Обычно раунды закрывает планировщик по дедлайну; ручное закрытие для администраторов.
func (h *FractalHandler) CloseRoundHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "fractalID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	result, err := h.tournamentService.CloseRound(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"result": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ReplaceSeatHandler обрабатывает POST /groups/{groupID}/seats/replace.
// Администратор передаёт место в открытом раунде другому участнику фрактала.
func (h *FractalHandler) ReplaceSeatHandler(w http.ResponseWriter, r *http.Request) {
	groupID, err := getIDFromURL(r, "groupID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input services.ReplaceSeatInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	input.GroupID = groupID

	if err := h.tournamentService.ReplaceSeat(r.Context(), input); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TreeHandler обрабатывает GET /fractals/{fractalID}/tree?round_id=
func (h *FractalHandler) TreeHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "fractalID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	roundID, err := getOptionalIntQuery(r, "round_id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	viewerID, err := viewerFromRequest(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	tree, err := h.treeService.GetFractalTree(r.Context(), id, roundID, viewerID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tree": tree}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// RebuildTreeHandler обрабатывает POST /fractals/{fractalID}/tree/rebuild?round_id=
// Сбрасывает кэш снимка раунда и загружает его заново.
func (h *FractalHandler) RebuildTreeHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "fractalID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	roundID, err := getOptionalIntQuery(r, "round_id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if roundID == nil {
		badRequestResponse(w, r, errors.New("round_id is required"))
		return
	}

	rt, err := h.treeService.RefreshRoundTree(r.Context(), id, *roundID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"round": rt}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GroupStatusHandler обрабатывает GET /groups/{groupID}
func (h *FractalHandler) GroupStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "groupID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	viewerID, err := viewerFromRequest(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	status, err := h.treeService.GetGroupStatus(r.Context(), id, viewerID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"group": status}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
