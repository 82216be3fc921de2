package service

import (
	"fmt"

	"github.com/DmitryZaika/granite-webhooks/internal/leads/ports"
	"github.com/DmitryZaika/granite-webhooks/internal/leads/repository"
)

// roster is the sales roster split into the two audiences a claim prompt
// needs: manager chats to deliver to, and workers to offer as candidates.
type roster struct {
	managerChatIDs []int64
	candidates     []repository.SalesUser
}

func splitRoster(users []repository.SalesUser) roster {
	var r roster
	for _, user := range users {
		switch user.Role {
		case repository.RoleWorker:
			r.candidates = append(r.candidates, user)
		case repository.RoleManager:
			if user.TelegramChatID != nil {
				r.managerChatIDs = append(r.managerChatIDs, *user.TelegramChatID)
			}
		}
	}
	return r
}

func assignedUserName(users []repository.SalesUser, userID int64) string {
	for _, user := range users {
		if user.ID == userID {
			return nameOr(user.Name)
		}
	}
	return unknownName
}

// claimKeyboard lays out the candidate buttons two per row. Button labels
// show each worker's month-to-date lead count so managers can balance the
// load; the callback payload carries the customer and the chosen user.
func claimKeyboard(customerID int64, candidates []repository.SalesUser) [][]ports.Button {
	var rows [][]ports.Button
	for start := 0; start < len(candidates); start += 2 {
		end := min(start+2, len(candidates))
		var row []ports.Button
		for _, candidate := range candidates[start:end] {
			row = append(row, ports.Button{
				Text:         fmt.Sprintf("%s: %d", nameOr(candidate.Name), candidate.MTDLeadCount),
				CallbackData: fmt.Sprintf("assign:%d:%d", customerID, candidate.ID),
			})
		}
		rows = append(rows, row)
	}
	return rows
}
