package block

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/specialistvlad/llmgrid/internal/hclexpr"
	"github.com/specialistvlad/llmgrid/internal/model"
	"github.com/specialistvlad/llmgrid/internal/retry"
)

// Spec is one declared block, ready to execute.
type Spec struct {
	Name    string
	Variant Variant
	// Config points at the variant's config struct, e.g. *LLMConfig.
	Config any
	// DependsOn is the sorted union of explicit depends_on entries and
	// implicitly referenced block names.
	DependsOn []string
	Range     hcl.Range

	// Cache is false when the block opted out with `cache = false`.
	Cache bool
	// Timeout bounds each external call; zero defers to the run policy.
	Timeout time.Duration
	Retry   RetryOverride
	// UsesEach is set when an expression reads the branch element.
	UsesEach bool

	// source holds the bytes of the declaring file.
	source []byte
	exprs  *hclexpr.Container
}

// RetryOverride replaces individual fields of the run's retry policy.
// Zero fields keep the run's value.
type RetryOverride struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// configValidator is implemented by configs with rules beyond their schema.
type configValidator interface {
	validate(spec *Spec) hcl.Diagnostics
}

// NewSpec decodes a declared block against its variant's schema. src is
// the content of the declaring file; Code blocks hash their expression
// text from it.
func NewSpec(b *model.Block, src []byte) (*Spec, hcl.Diagnostics) {
	var diags hcl.Diagnostics

	variant, err := ParseVariant(b.Variant)
	if err != nil {
		return nil, hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Unknown block variant",
			Detail:   fmt.Sprintf("%s. Valid variants are: %s.", err, strings.Join(variantNames[:], ", ")),
			Subject:  b.DefRange.Ptr(),
		}}
	}

	spec := &Spec{
		Name:      b.Name,
		Variant:   variant,
		DependsOn: union(b.DependsOn, b.References),
		Range:     b.DefRange,
		Cache:     variant.Cacheable(),
		source:    src,
		exprs:     b.Expressions,
	}
	for _, ref := range b.Expressions.References() {
		if ref.RootName() == model.EachName {
			spec.UsesEach = true
			break
		}
	}

	diags = append(diags, spec.decodeCommon(b)...)
	diags = append(diags, checkFunctions(b)...)

	cfg := newConfig(variant)
	diags = append(diags, gohcl.DecodeBody(b.Body, nil, cfg)...)
	if !diags.HasErrors() {
		diags = append(diags, missingRequired(cfg, b.DefRange)...)
	}
	if !diags.HasErrors() {
		if v, ok := cfg.(configValidator); ok {
			diags = append(diags, v.validate(spec)...)
		}
	}
	spec.Config = cfg

	if diags.HasErrors() {
		return nil, diags
	}
	return spec, diags
}

var exprType = reflect.TypeFor[hcl.Expression]()

// missingRequired reports required expression attributes of cfg that were
// omitted or set to null. gohcl never marks hcl.Expression fields as
// required; it fills them with a static null instead.
func missingRequired(cfg any, def hcl.Range) hcl.Diagnostics {
	var diags hcl.Diagnostics
	v := reflect.ValueOf(cfg).Elem()
	for i := range v.NumField() {
		field := v.Type().Field(i)
		tag, ok := field.Tag.Lookup("hcl")
		if !ok || field.Type != exprType || strings.Contains(tag, ",") {
			continue
		}
		expr, _ := v.Field(i).Interface().(hcl.Expression)
		if isSet(expr) {
			continue
		}
		subject := def
		if expr != nil {
			subject = expr.Range()
		}
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Missing required argument",
			Detail:   fmt.Sprintf("The argument %q is required, and must not be null.", tag),
			Subject:  subject.Ptr(),
		})
	}
	return diags
}

// ReferenceRange returns where the block first references name, falling
// back to the block header for explicit depends_on entries.
func (s *Spec) ReferenceRange(name string) hcl.Range {
	if s.exprs != nil {
		if ref, ok := s.exprs.FirstReference(name); ok {
			return ref.SourceRange()
		}
	}
	return s.Range
}

// newConfig returns an empty config for gohcl to decode into.
func newConfig(v Variant) any {
	switch v {
	case Input:
		return &InputConfig{}
	case Data:
		return &DataConfig{}
	case Code:
		return &CodeConfig{}
	case LLM:
		return &LLMConfig{}
	case Map:
		return &MapConfig{}
	case Reduce:
		return &ReduceConfig{}
	case Search:
		return &SearchConfig{}
	case Curl:
		return &CurlConfig{}
	case Browser:
		return &BrowserConfig{}
	}
	panic(fmt.Sprintf("block: no config for variant %s", v))
}

func (s *Spec) decodeCommon(b *model.Block) hcl.Diagnostics {
	var diags hcl.Diagnostics

	if b.Cache != nil {
		cache, d := staticBool(b.Cache, "cache")
		diags = append(diags, d...)
		if cache && !s.Variant.Cacheable() {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid cache value",
				Detail:   fmt.Sprintf("Blocks of variant %q are never cached.", s.Variant),
				Subject:  b.Cache.Range().Ptr(),
			})
		}
		s.Cache = cache && s.Variant.Cacheable()
	}

	if b.Timeout != nil || b.Retry != nil {
		if !s.Variant.External() {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Unsupported timeout or retry",
				Detail:   fmt.Sprintf("Blocks of variant %q make no external calls; timeout and retry do not apply.", s.Variant),
				Subject:  b.DefRange.Ptr(),
			})
			return diags
		}
	}

	if b.Timeout != nil {
		d, dd := staticDuration(b.Timeout, "timeout")
		diags = append(diags, dd...)
		s.Timeout = d
	}

	if r := b.Retry; r != nil {
		if isSet(r.MaxAttempts) {
			n, d := staticInt(r.MaxAttempts, "max_attempts")
			diags = append(diags, d...)
			if !d.HasErrors() && n < 1 {
				diags = append(diags, &hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Invalid max_attempts value",
					Detail:   "The \"max_attempts\" attribute must be at least 1.",
					Subject:  r.MaxAttempts.Range().Ptr(),
				})
			}
			s.Retry.MaxAttempts = n
		}
		if isSet(r.InitialInterval) {
			d, dd := staticDuration(r.InitialInterval, "initial_interval")
			diags = append(diags, dd...)
			s.Retry.InitialInterval = d
		}
		if isSet(r.MaxInterval) {
			d, dd := staticDuration(r.MaxInterval, "max_interval")
			diags = append(diags, dd...)
			s.Retry.MaxInterval = d
		}
	}
	return diags
}

// Policy applies the block's timeout and retry overrides to base.
func (s *Spec) Policy(base retry.Policy) retry.Policy {
	p := base
	if s.Timeout > 0 {
		p.Timeout = s.Timeout
	}
	if s.Retry.MaxAttempts > 0 {
		p.MaxAttempts = s.Retry.MaxAttempts
	}
	if s.Retry.InitialInterval > 0 {
		p.InitialInterval = s.Retry.InitialInterval
	}
	if s.Retry.MaxInterval > 0 {
		p.MaxInterval = s.Retry.MaxInterval
	}
	return p
}

// text returns the source text of expr.
func (s *Spec) text(expr hcl.Expression) string {
	return string(expr.Range().SliceBytes(s.source))
}

func checkFunctions(b *model.Block) hcl.Diagnostics {
	var diags hcl.Diagnostics
	for _, name := range b.Expressions.CalledFunctions() {
		if _, ok := functions[name]; ok {
			continue
		}
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Call to unknown function",
			Detail:   fmt.Sprintf("There is no function named %q. Available functions are: %s.", name, strings.Join(Functions(), ", ")),
			Subject:  b.DefRange.Ptr(),
		})
	}
	return diags
}

func union(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, name := range list {
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
