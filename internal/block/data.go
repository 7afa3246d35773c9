package block

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/llmgrid/internal/dataset"
	"github.com/zclconf/go-cty/cty"
)

// DataConfig names a stored dataset or lists records inline.
//
//	block "data" "EXAMPLES" {
//	  dataset = "examples"
//	  hash    = "9f2c..." # optional, defaults to the latest version
//	}
type DataConfig struct {
	DatasetExpr hcl.Expression `hcl:"dataset,optional"`
	HashExpr    hcl.Expression `hcl:"hash,optional"`
	ValuesExpr  hcl.Expression `hcl:"values,optional"`

	// DatasetID and Hash are set when the block names a stored dataset.
	DatasetID string
	Hash      string
	// Inline holds the records given with `values`.
	Inline *dataset.Dataset
}

func (c *DataConfig) validate(spec *Spec) hcl.Diagnostics {
	var diags hcl.Diagnostics

	hasDataset, hasValues := isSet(c.DatasetExpr), isSet(c.ValuesExpr)
	if hasDataset == hasValues {
		return hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Invalid data block",
			Detail:   "A data block needs exactly one of \"dataset\" or \"values\".",
			Subject:  spec.Range.Ptr(),
		}}
	}

	if hasDataset {
		c.DatasetID, diags = staticString(c.DatasetExpr, "dataset")
		if isSet(c.HashExpr) {
			var hashDiags hcl.Diagnostics
			c.Hash, hashDiags = staticString(c.HashExpr, "hash")
			diags = append(diags, hashDiags...)
		}
		return diags
	}

	if isSet(c.HashExpr) {
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid data block",
			Detail:   "\"hash\" only applies together with \"dataset\".",
			Subject:  c.HashExpr.Range().Ptr(),
		})
	}

	v, valueDiags := staticValue(c.ValuesExpr, "values", cty.DynamicPseudoType)
	diags = append(diags, valueDiags...)
	if valueDiags.HasErrors() {
		return diags
	}
	if !v.Type().IsTupleType() && !v.Type().IsListType() {
		return append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid values value",
			Detail:   "The \"values\" attribute must be a list of objects.",
			Subject:  c.ValuesExpr.Range().Ptr(),
		})
	}
	native, err := FromValue(v)
	if err != nil {
		return append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid values value",
			Detail:   err.Error(),
			Subject:  c.ValuesExpr.Range().Ptr(),
		})
	}
	d, err := dataset.FromValues(spec.Name, native.([]any))
	if err != nil {
		return append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid values value",
			Detail:   err.Error(),
			Subject:  c.ValuesExpr.Range().Ptr(),
		})
	}
	c.Inline = d
	return diags
}

// DatasetValue converts a dataset's records into the value a Data block
// yields.
func DatasetValue(d *dataset.Dataset) (cty.Value, error) {
	return ToValue(d.Value())
}

func executeData(env *Env, spec *Spec) (cty.Value, error) {
	cfg := spec.Config.(*DataConfig)
	if cfg.Inline != nil {
		v, err := DatasetValue(cfg.Inline)
		if err != nil {
			return cty.NilVal, execErr(spec, err)
		}
		return v, nil
	}
	v, ok := env.Datasets[spec.Name]
	if !ok {
		return cty.NilVal, execErr(spec, fmt.Errorf("dataset %q was not loaded", cfg.DatasetID))
	}
	return v, nil
}
