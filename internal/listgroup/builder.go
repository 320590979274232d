package listgroup

import (
	"context"
	"fmt"

	"github.com/tphakala/mcmigrate/internal/datastore/repository"
	"github.com/tphakala/mcmigrate/internal/errors"
	"github.com/tphakala/mcmigrate/internal/logger"
	"github.com/tphakala/mcmigrate/internal/mailchimp"
)

// Directory is the part of the MailChimp client the builder needs.
// *mailchimp.Client implements it.
type Directory interface {
	ValidateKey(ctx context.Context) error
	InterestCategories(ctx context.Context, listID string) ([]mailchimp.InterestCategory, error)
	Interests(ctx context.Context, listID, categoryID string) ([]mailchimp.Interest, error)
}

// BuildReport summarizes one index build.
type BuildReport struct {
	Pairs      int
	Categories int
	Interests  int
	// KeyErr is set when the API key was missing or rejected; nothing
	// was fetched in that case.
	KeyErr error
	// BranchErrors holds one error per list or category that could not
	// be fetched. Those branches contributed no interests.
	BranchErrors []error
}

// Builder fetches remote interests for every (event, list) pair.
type Builder struct {
	dir Directory
	log logger.Logger
}

// NewBuilder creates a builder.
func NewBuilder(dir Directory, log logger.Logger) *Builder {
	return &Builder{dir: dir, log: log}
}

// Build validates the key, then fetches categories and interests for each
// pair in order. Interests are added in fetch order, which fixes the order
// in which rows claim interests sharing a name. Fetch failures are
// reported, never returned.
func (b *Builder) Build(ctx context.Context, pairs []repository.EventList) (*InterestIndex, *BuildReport) {
	index := NewInterestIndex()
	report := &BuildReport{Pairs: len(pairs)}

	if err := b.dir.ValidateKey(ctx); err != nil {
		report.KeyErr = errors.New(fmt.Errorf("mailchimp API key is not usable: %w", err)).
			Component("listgroup").
			Category(errors.CategoryConfiguration).
			Build()
		b.log.Warn("skipping interest index build", logger.Error(err))
		return index, report
	}

	for _, pair := range pairs {
		if ctx.Err() != nil {
			report.BranchErrors = append(report.BranchErrors, ctx.Err())
			break
		}
		b.addList(ctx, index, report, pair)
	}

	b.log.Info("interest index built",
		logger.Int("pairs", report.Pairs),
		logger.Int("categories", report.Categories),
		logger.Int("interests", report.Interests),
		logger.Int("failed_branches", len(report.BranchErrors)))
	return index, report
}

func (b *Builder) addList(ctx context.Context, index *InterestIndex, report *BuildReport, pair repository.EventList) {
	categories, err := b.dir.InterestCategories(ctx, pair.ListID)
	if err != nil {
		b.branchFailed(report, err, pair, "")
		return
	}

	for _, cat := range categories {
		report.Categories++
		interests, err := b.dir.Interests(ctx, pair.ListID, cat.ID)
		if err != nil {
			b.branchFailed(report, err, pair, cat.ID)
			continue
		}
		for _, in := range interests {
			if in.CategoryID == "" {
				in.CategoryID = cat.ID
			}
			index.Add(pair.EventID, pair.ListID, in)
			report.Interests++
		}
	}
}

func (b *Builder) branchFailed(report *BuildReport, err error, pair repository.EventList, categoryID string) {
	msg := fmt.Sprintf("could not fetch interest categories of list %s for event %d", pair.ListID, pair.EventID)
	if categoryID != "" {
		msg = fmt.Sprintf("could not fetch interests of category %s in list %s for event %d", categoryID, pair.ListID, pair.EventID)
	}

	category := errors.CategoryOf(err)
	if category == errors.CategoryGeneric {
		category = errors.CategoryNetwork
	}
	wrapped := errors.New(fmt.Errorf("%s: %w", msg, err)).
		Component("listgroup").
		Category(category).
		Context("list_id", pair.ListID).
		Context("event_id", pair.EventID).
		Build()
	report.BranchErrors = append(report.BranchErrors, wrapped)
	b.log.Warn("interest branch skipped",
		logger.String("list_id", pair.ListID),
		logger.String("category_id", categoryID),
		logger.Error(err))
}
