package jobs

import (
	"github.com/autorenamer/autorenamer/pkg/errcodes"
	"github.com/autorenamer/autorenamer/pkg/models"
)

// Source is where jobs are read from. The queue manager keeps pending and
// running jobs plus a short history of finished ones.
type Source interface {
	Snapshot() []models.RenameJob
	Recent(limit int) []models.RenameJob
}

type ListJobsOptions struct {
	Limit    *int
	Offset   *int
	Statuses []string
	UserID   *int64
}

type Service struct {
	source Source
}

func NewService(source Source) *Service {
	return &Service{source}
}

// all returns live jobs oldest first, followed by finished jobs newest first.
// A job that finishes between the two reads is only listed once.
func (svc *Service) all() []models.RenameJob {
	live := svc.source.Snapshot()
	recent := svc.source.Recent(0)

	seen := make(map[string]bool, len(recent))
	jobs := make([]models.RenameJob, 0, len(live)+len(recent))
	for _, job := range recent {
		seen[job.ID] = true
	}
	for _, job := range live {
		if !seen[job.ID] {
			jobs = append(jobs, job)
		}
	}
	return append(jobs, recent...)
}

func (svc *Service) RetrieveJob(id string) (*models.RenameJob, error) {
	for _, job := range svc.all() {
		if job.ID == id {
			job := job
			return &job, nil
		}
	}
	return nil, errcodes.NotFound("Job")
}

func (svc *Service) ListJobs(opts ListJobsOptions) ([]models.RenameJob, error) {
	jobs, _, err := svc.ListJobsWithTotal(opts)
	return jobs, err
}

// ListJobsWithTotal filters jobs and returns one page of them along with the
// number that matched before paging.
func (svc *Service) ListJobsWithTotal(opts ListJobsOptions) ([]models.RenameJob, int, error) {
	statuses := map[string]bool{}
	for _, s := range opts.Statuses {
		statuses[s] = true
	}

	matched := []models.RenameJob{}
	for _, job := range svc.all() {
		if len(statuses) > 0 && !statuses[job.Status] {
			continue
		}
		if opts.UserID != nil && job.UserID != *opts.UserID {
			continue
		}
		matched = append(matched, job)
	}
	total := len(matched)

	offset := 0
	if opts.Offset != nil {
		offset = *opts.Offset
	}
	if offset > total {
		offset = total
	}
	matched = matched[offset:]
	if opts.Limit != nil && *opts.Limit < len(matched) {
		matched = matched[:*opts.Limit]
	}

	return matched, total, nil
}

// CountByStatus returns how many known jobs are in each status.
func (svc *Service) CountByStatus() map[string]int {
	counts := map[string]int{}
	for _, job := range svc.all() {
		counts[job.Status]++
	}
	return counts
}
