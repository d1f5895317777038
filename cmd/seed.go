package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/salestrack/internal/metric"
	"github.com/sells-group/salestrack/internal/model"
	"github.com/sells-group/salestrack/internal/store"
)

// fixtures is the seed file layout. Metrics refer to companies and to their
// operands by name; operands must appear earlier in the list.
type fixtures struct {
	Companies []companyFixture `yaml:"companies"`
	Metrics   []metricFixture  `yaml:"metrics"`
}

type companyFixture struct {
	Name     string           `yaml:"name"`
	Users    []userFixture    `yaml:"users"`
	Products []productFixture `yaml:"products"`
	Metrics  []string         `yaml:"metrics"`
}

type userFixture struct {
	Email     string `yaml:"email"`
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
	Role      string `yaml:"role"`
}

type productFixture struct {
	Name  string `yaml:"name"`
	Price string `yaml:"price"`
}

type metricFixture struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Company  string `yaml:"company"`
	Default  bool   `yaml:"default"`
	Operator string `yaml:"operator"`
	Value1   string `yaml:"value1"`
	Value2   string `yaml:"value2"`
}

type seedResult struct {
	Companies int
	Users     int
	Products  int
	Metrics   int
}

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load companies, users, products and metrics from a YAML file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("store"); err != nil {
			return err
		}

		f, err := loadFixtures(seedFile)
		if err != nil {
			return err
		}

		svc, err := openServices(ctx)
		if err != nil {
			return err
		}
		defer svc.store.Close() //nolint:errcheck

		res, err := seedFixtures(ctx, svc.store, f)
		if err != nil {
			return err
		}
		zap.L().Info("seed complete",
			zap.String("file", seedFile),
			zap.Int("companies", res.Companies),
			zap.Int("users", res.Users),
			zap.Int("products", res.Products),
			zap.Int("metrics", res.Metrics),
		)
		return nil
	},
}

func loadFixtures(path string) (*fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "read fixtures")
	}
	var f fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "parse fixtures")
	}
	return &f, nil
}

// seedFixtures writes f in one transaction.
func seedFixtures(ctx context.Context, st store.Store, f *fixtures) (seedResult, error) {
	var res seedResult
	err := st.WithTx(ctx, func(tx store.Store) error {
		res = seedResult{}
		companies := make(map[string]int64, len(f.Companies))
		for _, cf := range f.Companies {
			c := &model.Company{Name: cf.Name}
			if err := tx.CreateCompany(ctx, c); err != nil {
				return eris.Wrapf(err, "seed company %q", cf.Name)
			}
			companies[cf.Name] = c.ID
			res.Companies++

			for _, uf := range cf.Users {
				u := &model.User{
					CompanyID: &c.ID,
					Email:     uf.Email,
					FirstName: uf.FirstName,
					LastName:  uf.LastName,
					Role:      uf.Role,
				}
				if err := tx.CreateUser(ctx, u); err != nil {
					return eris.Wrapf(err, "seed user %q", uf.Email)
				}
				res.Users++
			}

			for _, pf := range cf.Products {
				price, err := decimal.NewFromString(pf.Price)
				if err != nil {
					return eris.Wrapf(err, "seed product %q: price", pf.Name)
				}
				p := &model.Product{CompanyID: &c.ID, Name: pf.Name, Price: price}
				if err := tx.CreateProduct(ctx, p); err != nil {
					return eris.Wrapf(err, "seed product %q", pf.Name)
				}
				res.Products++
			}
		}

		metrics := metric.NewService(tx)
		ids := make(map[string]int64, len(f.Metrics))
		for _, mf := range f.Metrics {
			m := &model.Metric{Name: mf.Name, Type: model.MetricType(mf.Type), IsDefault: mf.Default}
			if mf.Company != "" {
				id, ok := companies[mf.Company]
				if !ok {
					return eris.Errorf("seed metric %q: unknown company %q", mf.Name, mf.Company)
				}
				m.CompanyID = &id
			}
			if mf.Operator != "" {
				op := model.Operator(mf.Operator)
				m.Operator = &op
				for _, ref := range []struct {
					name string
					dst  **int64
				}{{mf.Value1, &m.Value1ID}, {mf.Value2, &m.Value2ID}} {
					id, ok := ids[ref.name]
					if !ok {
						return eris.Errorf("seed metric %q: operand %q is not defined before it", mf.Name, ref.name)
					}
					*ref.dst = &id
				}
			}
			created, err := metrics.Create(ctx, m)
			if err != nil {
				return eris.Wrapf(err, "seed metric %q", mf.Name)
			}
			ids[mf.Name] = created.ID
			res.Metrics++
		}

		for _, cf := range f.Companies {
			for _, name := range cf.Metrics {
				id, ok := ids[name]
				if !ok {
					return eris.Errorf("seed company %q: unknown metric %q", cf.Name, name)
				}
				if err := metrics.AttachToCompany(ctx, companies[cf.Name], id, ""); err != nil {
					return eris.Wrapf(err, "seed company %q: attach %q", cf.Name, name)
				}
			}
		}
		return nil
	})
	return res, err
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "", "path to fixtures YAML (required)")
	_ = seedCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(seedCmd)
}
