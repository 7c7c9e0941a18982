package admin

import "fmt"

// ItemAction describes one per-row admin action. Confirmation is a client
// concern: the prompt text rides along as metadata and the server never
// asks again.
type ItemAction struct {
	Name         string `json:"name"`
	Label        string `json:"label"`
	Icon         string `json:"icon,omitempty"`
	URL          string `json:"url"`
	Method       string `json:"method"`
	Confirmation string `json:"confirmation,omitempty"`
}

func indexURL(app, table string) string {
	return fmt.Sprintf("/admin/%s/%s", app, table)
}

func itemURL(app, table, id string) string {
	return fmt.Sprintf("/admin/%s/%s/%s", app, table, id)
}

// itemActions returns the actions rendered into a grid row's dropdown. The
// first entry doubles as the grid's double-click default action.
func itemActions(app, table, id string) []ItemAction {
	return []ItemAction{
		{
			Name:   "edit",
			Label:  "Edit",
			Icon:   "pencil",
			URL:    itemURL(app, table, id),
			Method: "GET",
		},
		{
			Name:   "duplicate",
			Label:  "Duplicate",
			Icon:   "copy",
			URL:    itemURL(app, table, id) + "/duplicate",
			Method: "GET",
		},
		{
			Name:         "delete",
			Label:        "Delete",
			Icon:         "trash",
			URL:          itemURL(app, table, id),
			Method:       "DELETE",
			Confirmation: "Are you sure you want to delete this record?",
		},
	}
}

// gridActions returns the top-level actions of the index view.
func gridActions(app, table string) []ItemAction {
	return []ItemAction{
		{
			Name:   "new",
			Label:  "New",
			Icon:   "plus",
			URL:    itemURL(app, table, "new"),
			Method: "GET",
		},
	}
}

func actionMap(actions []ItemAction) map[string]ItemAction {
	m := make(map[string]ItemAction, len(actions))
	for _, a := range actions {
		m[a.Name] = a
	}
	return m
}
