package services

import "errors"

// Общие ошибки сервисов; handlers.mapServiceErrorToHTTP переводит их в HTTP статусы.
var (
	// Не найдено
	ErrNotFound         = errors.New("requested resource not found")
	ErrFractalNotFound  = errors.New("fractal not found")
	ErrMemberNotFound   = errors.New("member not found")
	ErrRoundNotFound    = errors.New("round not found")
	ErrGroupNotFound    = errors.New("group not found")
	ErrProposalNotFound = errors.New("proposal not found")
	ErrCommentNotFound  = errors.New("comment not found")

	// Валидация
	ErrValidationFailed    = errors.New("validation failed")
	ErrNameRequired        = errors.New("fractal name is required")
	ErrTitleRequired       = errors.New("proposal title is required")
	ErrBodyRequired        = errors.New("text is required")
	ErrInvalidPlatform     = errors.New("unknown member platform")
	ErrExternalIDRequired  = errors.New("external id is required")
	ErrDisplayNameRequired = errors.New("display name is required")
	ErrScoreOutOfRange     = errors.New("score must be between 1 and 10")
	ErrInvalidPoints       = errors.New("representative points must be 1, 2 or 3")
	ErrInvalidSettings     = errors.New("invalid fractal settings")

	// Конфликты состояния
	ErrFractalNameConflict   = errors.New("fractal name already exists")
	ErrFractalNotJoinable    = errors.New("fractal is not accepting members")
	ErrAlreadyMember         = errors.New("member already joined this fractal")
	ErrMemberInOtherFractal  = errors.New("member is active in another fractal")
	ErrNotFractalMember      = errors.New("member is not in this fractal")
	ErrAlreadyStarted        = errors.New("fractal already started")
	ErrNoMembers             = errors.New("fractal has no members to start with")
	ErrRoundClosed           = errors.New("round is closed")
	ErrNoOpenRound           = errors.New("fractal has no open round")
	ErrNotGroupMember        = errors.New("member is not in this group")
	ErrAlreadySeated         = errors.New("member already has a seat in this round")
	ErrCandidateNotInGroup   = errors.New("candidate is not in this group")
	ErrGroupRoundMismatch    = errors.New("group does not belong to this round")
	ErrProposalLimitReached  = errors.New("proposal limit for this round reached")
	ErrParentCommentMismatch = errors.New("parent comment belongs to another proposal")
)
