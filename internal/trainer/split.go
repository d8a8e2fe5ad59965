package trainer

import (
	"math/rand"

	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/features"
)

// stratifiedSplit divides examples into train and test sets, keeping
// the anomaly ratio of each side close to the overall ratio. The shuffle
// is seeded so a rerun on the same data produces the same split.
func stratifiedSplit(examples []features.Example, testFraction float64, seed int64) (train, test []features.Example) {
	rng := rand.New(rand.NewSource(seed))

	var normal, anomalous []features.Example
	for _, ex := range examples {
		if ex.Anomaly {
			anomalous = append(anomalous, ex)
		} else {
			normal = append(normal, ex)
		}
	}

	splitClass := func(class []features.Example) {
		rng.Shuffle(len(class), func(i, j int) {
			class[i], class[j] = class[j], class[i]
		})
		nTest := int(float64(len(class)) * testFraction)
		test = append(test, class[:nTest]...)
		train = append(train, class[nTest:]...)
	}

	splitClass(normal)
	splitClass(anomalous)

	return train, test
}
