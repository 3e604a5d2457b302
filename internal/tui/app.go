// Package tui 索引进度的终端界面
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/merlian/merlian/pkg/merlian"
	"github.com/merlian/merlian/pkg/store"
)

// pollInterval 任务进度轮询间隔
const pollInterval = 200 * time.Millisecond

// Model 进度界面状态
type Model struct {
	engine *merlian.Merlian
	jobID  string

	bar  progress.Model
	job  *store.Job
	err  error
	done bool
}

// NewModel 创建进度界面
func NewModel(engine *merlian.Merlian, jobID string) Model {
	return Model{
		engine: engine,
		jobID:  jobID,
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return m.poll
}

// poll 读取持久化的任务记录
func (m Model) poll() tea.Msg {
	j, err := m.engine.Job(m.jobID)
	if err != nil {
		return ErrorMsg{Err: err}
	}
	return JobUpdateMsg{Job: j}
}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg {
		return TickMsg{}
	})
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			// 退出界面前请求取消，进行中的资产会做完
			if !m.done {
				m.engine.CancelJob(m.jobID)
			}
			return m, tea.Quit
		}

	case JobUpdateMsg:
		m.job = msg.Job
		if msg.Job.Status.Terminal() {
			m.done = true
			return m, tea.Quit
		}
		return m, tick()

	case ErrorMsg:
		m.err = msg.Err
		m.done = true
		return m, tea.Quit

	case TickMsg:
		return m, m.poll

	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model
func (m Model) View() string {
	if m.err != nil {
		return ErrorStyle.Render("error: "+m.err.Error()) + "\n"
	}
	if m.job == nil {
		return TitleStyle.Render("Indexing") + "\n" + HintStyle.Render("starting...") + "\n"
	}

	var pct float64
	if m.job.Total > 0 {
		pct = float64(m.job.Processed) / float64(m.job.Total)
	}

	s := TitleStyle.Render("Indexing") + "\n"
	s += m.bar.ViewAs(pct) + "  "
	s += CountStyle.Render(fmt.Sprintf("%d/%d", m.job.Processed, m.job.Total)) + "\n"

	switch m.job.Status {
	case store.JobDone:
		s += DoneStyle.Render("done") + "  " + m.job.Message + "\n"
	case store.JobCancelled:
		s += CancelledStyle.Render("cancelled") + "  " + m.job.Message + "\n"
	case store.JobError:
		s += ErrorStyle.Render("failed") + "  " + m.job.Error + "\n"
	default:
		s += HintStyle.Render("press q to cancel") + "\n"
	}

	return s
}

// Run 前台跟踪任务直到终态
func Run(engine *merlian.Merlian, jobID string) error {
	p := tea.NewProgram(NewModel(engine, jobID))
	_, err := p.Run()
	return err
}
