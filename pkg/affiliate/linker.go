package affiliate

import (
	"context"
	"net/url"
	"strings"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/dealscope/pkg/domain"
)

// placeholder substituted with the percent-encoded original url
const placeholder = "{url}"

// ProgramSource provides active affiliate programs in precedence order
type ProgramSource interface {
	GetActiveAffiliatePrograms(ctx context.Context) ([]domain.AffiliateProgram, error)
}

// Linker rewrites booking urls through the highest-precedence active
// affiliate program. With no active program urls pass through unchanged.
type Linker struct {
	programs ProgramSource
}

// NewLinker creates a linker
func NewLinker(programs ProgramSource) *Linker {
	return &Linker{programs: programs}
}

// Rewrite applies the first active program's pattern to the url. Exactly one
// program is ever applied, precedence is the explicit priority order from
// the store. Invalid input or a pattern without a placeholder passes the url
// through untouched rather than corrupting the link.
func (l *Linker) Rewrite(ctx context.Context, rawURL string) string {
	if rawURL == "" {
		return rawURL
	}
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		lgr.Printf("[WARN] not rewriting invalid booking url %q: %v", rawURL, err)
		return rawURL
	}

	programs, err := l.programs.GetActiveAffiliatePrograms(ctx)
	if err != nil {
		lgr.Printf("[WARN] affiliate lookup failed, passing url through: %v", err)
		return rawURL
	}
	if len(programs) == 0 {
		return rawURL
	}

	program := programs[0]
	if !strings.Contains(program.URLPattern, placeholder) {
		lgr.Printf("[WARN] affiliate program %q pattern has no %s placeholder", program.Name, placeholder)
		return rawURL
	}

	return strings.Replace(program.URLPattern, placeholder, url.QueryEscape(rawURL), 1)
}
