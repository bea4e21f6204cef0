package auth

import (
	"slices"

	"git.handmade.network/hmn/boardmod/src/models"
)

type Action int

const (
	ActionViewBans Action = iota + 1
	ActionManageBans
	ActionResolveAppeals
	ActionViewRangebans
	ActionManageRangebans
	ActionViewIPHistory
	ActionRecordIPHistory
	ActionCleanupIPHistory
)

func (a Action) isView() bool {
	switch a {
	case ActionViewBans, ActionViewRangebans, ActionViewIPHistory:
		return true
	}
	return false
}

// Admins and moderators without a board list can moderate every board;
// everyone else only the boards they were given.
func CanModerateBoard(user *models.User, boardID string) bool {
	if user == nil {
		return false
	}
	return user.IsAdmin() || len(user.Boards) == 0 || slices.Contains(user.Boards, boardID)
}

func canModerateAllBoards(user *models.User) bool {
	return user.IsAdmin() || len(user.Boards) == 0
}

/*
The one place that decides who may do what. boardID is the board the action
applies to, or nil for site-wide actions (global bans and rangebans, IP
history across all boards).

  - Admins may do anything.
  - Site-wide changes, and pruning IP history, are admin-only.
  - Janitors may only look.
  - Otherwise the user must be able to moderate the board; viewing site-wide
    data needs access to every board.
*/
func Allow(user *models.User, boardID *string, action Action) bool {
	if user == nil {
		return false
	}
	if user.IsAdmin() {
		return true
	}
	if action == ActionCleanupIPHistory {
		return false
	}
	if user.Role == models.RoleJanitor && !action.isView() {
		return false
	}
	if user.Role != models.RoleModerator && user.Role != models.RoleJanitor {
		return false
	}

	if boardID == nil {
		return action.isView() && canModerateAllBoards(user)
	}
	return CanModerateBoard(user, *boardID)
}
