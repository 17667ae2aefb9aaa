package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/polish/internal/models"
)

var _ list.Item = jobItem{}

// jobItem wraps [models.Job] to implement [list.Item].
type jobItem struct {
	job *models.Job
}

func (i jobItem) FilterValue() string { return i.job.CollectionID }
func (i jobItem) Title() string {
	return fmt.Sprintf("%s • %s %s", i.job.CollectionID, i.job.Spec.Field, i.job.Spec.Direction)
}
func (i jobItem) Description() string {
	desc := fmt.Sprintf("%s %d/%d", i.job.Status, i.job.Progress, i.job.Total)
	if i.job.Message != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.job.Message)
	}
	return desc
}
