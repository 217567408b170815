package migration

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/privateledger/ledger/pkg/ledger/ledgererr"
)

// BudgetPeriod is the recurrence of a category's budget, mirroring
// event.PeriodType without importing the event package into a parser.
type BudgetPeriod string

const (
	BudgetMonthly BudgetPeriod = "monthly"
	BudgetYearly  BudgetPeriod = "yearly"
)

// BudgetSpec is a category's optional budget allocation.
type BudgetSpec struct {
	Amount decimal.Decimal
	Period BudgetPeriod
}

// Category is one entry in categories.yml, recursively one level deep:
// subcategories share the same shape but may not themselves carry
// subcategories.
type Category struct {
	Name           string
	Description    string
	Subcategories  []Category
	Budget         *BudgetSpec
	TaxDeductible  bool
}

// CategoryConfig is the parsed root of categories.yml.
type CategoryConfig struct {
	Categories []Category
}

// rawConfig/rawCategory/rawBudget mirror the YAML shape exactly; Category
// and CategoryConfig are the typed forms callers work with.
type rawConfig struct {
	Categories []rawCategory `yaml:"categories"`
}

type rawCategory struct {
	Name          string        `yaml:"name"`
	Description   string        `yaml:"description"`
	Subcategories []rawCategory `yaml:"subcategories"`
	Budget        *rawBudget    `yaml:"budget"`
	TaxDeductible bool          `yaml:"tax_deductible"`
}

type rawBudget struct {
	Amount string `yaml:"amount"`
	Period string `yaml:"period"`
}

// ParseCategories decodes a categories.yml document into a
// CategoryConfig. Category and subcategory names may not contain ':',
// which is reserved as the category:subcategory separator in reports.
func ParseCategories(r io.Reader) (CategoryConfig, error) {
	var raw rawConfig
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		if err == io.EOF {
			return CategoryConfig{}, nil
		}
		return CategoryConfig{}, fmt.Errorf("migration: decoding categories.yml: %w", err)
	}

	categories := make([]Category, 0, len(raw.Categories))
	for _, rc := range raw.Categories {
		cat, err := convertCategory(rc, true)
		if err != nil {
			return CategoryConfig{}, err
		}
		categories = append(categories, cat)
	}
	return CategoryConfig{Categories: categories}, nil
}

func convertCategory(rc rawCategory, allowSubcategories bool) (Category, error) {
	if err := validateName(rc.Name); err != nil {
		return Category{}, err
	}
	if !allowSubcategories && len(rc.Subcategories) > 0 {
		return Category{}, fmt.Errorf("migration: subcategory %q must not itself carry subcategories", rc.Name)
	}

	var subcategories []Category
	for _, sub := range rc.Subcategories {
		converted, err := convertCategory(sub, false)
		if err != nil {
			return Category{}, err
		}
		subcategories = append(subcategories, converted)
	}

	var budget *BudgetSpec
	if rc.Budget != nil {
		amount, err := decimal.NewFromString(rc.Budget.Amount)
		if err != nil {
			return Category{}, fmt.Errorf("migration: category %q has invalid budget amount %q: %w", rc.Name, rc.Budget.Amount, err)
		}
		period := BudgetPeriod(rc.Budget.Period)
		if period != BudgetMonthly && period != BudgetYearly {
			return Category{}, fmt.Errorf("migration: category %q has invalid budget period %q", rc.Name, rc.Budget.Period)
		}
		budget = &BudgetSpec{Amount: amount, Period: period}
	}

	return Category{
		Name:          rc.Name,
		Description:   rc.Description,
		Subcategories: subcategories,
		Budget:        budget,
		TaxDeductible: rc.TaxDeductible,
	}, nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: category name must not be empty", ledgererr.ErrValidation)
	}
	if strings.Contains(name, ":") {
		return fmt.Errorf("%w: category name %q must not contain ':'", ledgererr.ErrValidation, name)
	}
	return nil
}
