package training

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"risk-engine/internal/artifact"
	"risk-engine/internal/common"
	"risk-engine/internal/ensemble"
	"risk-engine/internal/ml"
)

// bank is the set of fitted members of one family.
type bank struct {
	family   string
	logistic *ml.Logistic
	mlp      *ml.MLP
	forest   *ml.RandomForest
	tree     *ml.DecisionTree
	boosting *ml.GradientBoosting
	gmm      *ml.GMM
}

// fitBank fits every member of cfg.Family on the same scaled rows. The MLP
// monitors Xval when given and otherwise holds out its own split. Members
// train concurrently; each owns its state and only reads X.
func fitBank(cfg Config, X [][]float64, y []int, Xval [][]float64, yval []int) (*bank, error) {
	b := &bank{family: cfg.Family}
	var g errgroup.Group
	var err error

	switch cfg.Family {
	case common.FamilyFraud:
		f := cfg.Fraud
		if b.logistic, err = ml.NewLogistic(f.Logistic); err != nil {
			return nil, err
		}
		if b.mlp, err = ml.NewMLP(f.MLP); err != nil {
			return nil, err
		}
		if b.forest, err = ml.NewRandomForest(f.Forest); err != nil {
			return nil, err
		}
		if b.gmm, err = ml.NewGMM(f.GMM); err != nil {
			return nil, err
		}
		g.Go(func() error { return fitMember(b.logistic, X, y) })
		g.Go(func() error { return fitMember(b.forest, X, y) })
		g.Go(func() error {
			if Xval == nil {
				return fitMember(b.mlp, X, y)
			}
			if err := b.mlp.FitValidated(X, y, Xval, yval); err != nil {
				return fmt.Errorf("%s: %w", ml.NameNeuralNetwork, err)
			}
			return nil
		})
		g.Go(func() error {
			if err := b.gmm.Fit(negatives(X, y)); err != nil {
				return fmt.Errorf("%s: %w", ml.NameGMM, err)
			}
			return nil
		})

	case common.FamilyCredit:
		c := cfg.Credit
		if b.logistic, err = ml.NewLogistic(c.Logistic); err != nil {
			return nil, err
		}
		if b.tree, err = ml.NewDecisionTree(c.Tree); err != nil {
			return nil, err
		}
		if b.forest, err = ml.NewRandomForest(c.Forest); err != nil {
			return nil, err
		}
		if b.boosting, err = ml.NewGradientBoosting(c.Boosting); err != nil {
			return nil, err
		}
		g.Go(func() error { return fitMember(b.logistic, X, y) })
		g.Go(func() error { return fitMember(b.tree, X, y) })
		g.Go(func() error { return fitMember(b.forest, X, y) })
		g.Go(func() error { return fitMember(b.boosting, X, y) })

	default:
		return nil, fmt.Errorf("training: unknown family %q", cfg.Family)
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return b, nil
}

func fitMember(c ml.Classifier, X [][]float64, y []int) error {
	if err := c.Fit(X, y); err != nil {
		return fmt.Errorf("%s: %w", c.Name(), err)
	}
	return nil
}

// negatives returns the label-0 rows the anomaly detector learns from.
func negatives(X [][]float64, y []int) [][]float64 {
	var out [][]float64
	for i, v := range y {
		if v == 0 {
			out = append(out, X[i])
		}
	}
	return out
}

func (b *bank) member(name string) ensemble.Member {
	switch name {
	case ml.NameLogistic:
		return ensemble.ClassifierMember(b.logistic)
	case ml.NameNeuralNetwork:
		return ensemble.ClassifierMember(b.mlp)
	case ml.NameRandomForest:
		return ensemble.ClassifierMember(b.forest)
	case ml.NameDecisionTree:
		return ensemble.ClassifierMember(b.tree)
	case ml.NameGradientBoosting:
		return ensemble.ClassifierMember(b.boosting)
	case ml.NameGMM:
		return ensemble.AnomalyMember(b.gmm)
	}
	return nil
}

// combiner blends the fitted members on already scaled rows.
func (b *bank) combiner(weights map[string]float64, cut float64) (*ensemble.Combiner, error) {
	var members []ensemble.Weighted
	for _, name := range artifact.Members(b.family) {
		members = append(members, ensemble.Weighted{Member: b.member(name), Weight: weights[name]})
	}
	return ensemble.NewCombiner(members, cut)
}

// store copies every member's parameters into a.
func (b *bank) store(a *artifact.Artifact) error {
	lp, err := b.logistic.Params()
	if err != nil {
		return err
	}
	a.Models.Logistic = &lp
	fp, err := b.forest.Params()
	if err != nil {
		return err
	}
	a.Models.RandomForest = &fp

	switch b.family {
	case common.FamilyFraud:
		mp, err := b.mlp.Params()
		if err != nil {
			return err
		}
		a.Models.NeuralNetwork = &mp
		gp, err := b.gmm.Params()
		if err != nil {
			return err
		}
		a.Anomaly = &gp
	case common.FamilyCredit:
		tp, err := b.tree.Params()
		if err != nil {
			return err
		}
		a.Models.DecisionTree = &tp
		bp, err := b.boosting.Params()
		if err != nil {
			return err
		}
		a.Models.GradientBoosting = &bp
	}
	return nil
}

// importance blends the members' feature importances by ensemble weight.
// Members without an importance notion are left out.
func (b *bank) importance(d int, weights map[string]float64) []float64 {
	reporters := map[string]any{
		ml.NameLogistic:         b.logistic,
		ml.NameNeuralNetwork:    b.mlp,
		ml.NameRandomForest:     b.forest,
		ml.NameDecisionTree:     b.tree,
		ml.NameGradientBoosting: b.boosting,
	}
	var vectors [][]float64
	var w []float64
	for _, name := range artifact.Members(b.family) {
		rep, ok := reporters[name].(ml.ImportanceReporter)
		if !ok {
			continue
		}
		vectors = append(vectors, rep.FeatureImportance())
		w = append(w, weights[name])
	}
	return ml.CombineImportance(d, vectors, w)
}
