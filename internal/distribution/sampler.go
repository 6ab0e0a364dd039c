package distribution

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Sampler draws observations for one state.
type Sampler interface {
	Rand() float64
}

// zeroInflated draws an exact zero with probability zeroMass.
type zeroInflated struct {
	zeroMass float64
	inner    Sampler
	rng      *rand.Rand
}

func (z zeroInflated) Rand() float64 {
	if z.rng.Float64() < z.zeroMass {
		return 0
	}
	return z.inner.Rand()
}

// Sampler returns a random source for the family at the given parameter
// values. Circular and categorical families have no sampler.
func (f Family) Sampler(values []float64, src rand.Source) (Sampler, error) {
	if err := f.CheckValues(values); err != nil {
		return nil, err
	}
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	switch f.name {
	case "gamma":
		return gammaFromMoments(values[0], values[1], src), nil
	case "zigamma":
		return zeroInflated{zeroMass: values[2], inner: gammaFromMoments(values[0], values[1], src), rng: rand.New(src)}, nil
	case "weibull":
		return distuv.Weibull{K: values[0], Lambda: values[1], Src: src}, nil
	case "ziweibull":
		inner := distuv.Weibull{K: values[0], Lambda: values[1], Src: src}
		return zeroInflated{zeroMass: values[2], inner: inner, rng: rand.New(src)}, nil
	case "lnorm":
		return distuv.LogNormal{Mu: values[0], Sigma: values[1], Src: src}, nil
	case "exp":
		return distuv.Exponential{Rate: values[0], Src: src}, nil
	case "norm":
		return distuv.Normal{Mu: values[0], Sigma: values[1], Src: src}, nil
	case "beta":
		return distuv.Beta{Alpha: values[0], Beta: values[1], Src: src}, nil
	case "pois":
		return distuv.Poisson{Lambda: values[0], Src: src}, nil
	case "bern":
		return distuv.Bernoulli{P: values[0], Src: src}, nil
	}
	return nil, fmt.Errorf("distribution: no sampler for %s", f.name)
}

// gammaFromMoments converts the mean/sd parametrisation to shape and rate.
func gammaFromMoments(mean, sd float64, src rand.Source) distuv.Gamma {
	variance := sd * sd
	return distuv.Gamma{Alpha: mean * mean / variance, Beta: mean / variance, Src: src}
}
