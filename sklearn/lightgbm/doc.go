// Package lightgbm implements a gradient-boosted decision tree classifier
// in pure Go, trained with histogram-based leaf-wise tree growth as in
// LightGBM.
//
// # scikit-learn Compatible API
//
//	clf := lightgbm.NewLGBMClassifier().
//	    WithNumIterations(200).
//	    WithRandomState(42)
//	if err := clf.Fit(XTrain, yTrain); err != nil {
//	    return err
//	}
//	labels, err := clf.Predict(XTest)      // n×1 class labels
//	proba, err := clf.PredictProba(XTest)  // n×2 class probabilities
//
// Hyperparameters use LightGBM's names through GetParams and SetParams so
// the classifier can be driven by model_selection.RandomizedSearchCV:
//
//	err := clf.SetParams(map[string]interface{}{
//	    "n_estimators":  300,
//	    "max_depth":     12,
//	    "learning_rate": 0.05,
//	    "num_leaves":    40,
//	    "boosting_type": "gbdt",
//	})
//
// Only binary classification with the gbdt boosting type is supported.
//
// # Persistence
//
// A classifier, fitted or not, round-trips through encoding/gob, so
// core/model.SaveModel and LoadModel persist it including its trees.
//
// # Determinism
//
// Row and feature sampling draw from a PCG stream seeded by random_state;
// the same parameters and data always produce the same trees.
package lightgbm
