package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/desertthunder/docdash/internal/models"
)

var (
	_ list.Item = taskItem{}
)

var bar = progress.New(progress.WithDefaultGradient(), progress.WithWidth(24), progress.WithoutPercentage())

// taskItem wraps [models.TaskView] to implement [list.Item].
type taskItem struct {
	task models.TaskView
}

func (i taskItem) FilterValue() string { return string(i.task.Kind) + " " + i.task.ID }
func (i taskItem) Title() string {
	return fmt.Sprintf("%s %s  %s", i.task.Kind, shortID(i.task.ID), styles.Status(i.task.Status).Render(string(i.task.Status)))
}
func (i taskItem) Description() string {
	desc := fmt.Sprintf("%s %3d%%", bar.ViewAs(float64(i.task.Progress)/100), i.task.Progress)
	switch {
	case i.task.Error != "":
		desc = fmt.Sprintf("%s • %s", desc, i.task.Error)
	case i.task.Message != "":
		desc = fmt.Sprintf("%s • %s", desc, i.task.Message)
	}
	if i.task.Stats.Rate != "" && !i.task.Status.Terminal() {
		desc = fmt.Sprintf("%s • %s", desc, i.task.Stats.Rate)
	}
	return desc
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func taskItems(views []models.TaskView) []list.Item {
	items := make([]list.Item, len(views))
	for i, v := range views {
		items[i] = taskItem{task: v}
	}
	return items
}
