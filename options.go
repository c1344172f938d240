package zonecount

// Option allows configuration of a Driver
type Option func(*config)

// WithSplitSize sets the SplitSize of the Driver
func WithSplitSize(s int64) Option {
	return func(c *config) {
		c.SplitSize = s
	}
}

// WithMapBinSize sets the MapBinSize of the Driver
func WithMapBinSize(s int64) Option {
	return func(c *config) {
		c.MapBinSize = s
	}
}

// WithReduceBinSize sets the ReduceBinSize of the Driver
func WithReduceBinSize(s int64) Option {
	return func(c *config) {
		c.ReduceBinSize = s
	}
}

// WithWorkingLocation sets the location and filesystem backend of the Driver
func WithWorkingLocation(location string) Option {
	return func(c *config) {
		c.WorkingLocation = location
	}
}

// WithInputs specifies job inputs (i.e. input files/directories)
func WithInputs(inputs ...string) Option {
	return func(c *config) {
		c.Inputs = append(c.Inputs, inputs...)
	}
}

// WithMaxConcurrency limits the number of tasks running at the same time
func WithMaxConcurrency(n int) Option {
	return func(c *config) {
		c.MaxConcurrency = n
	}
}

// WithCleanup controls whether reducers delete the intermediate map data
func WithCleanup(cleanup bool) Option {
	return func(c *config) {
		c.Cleanup = cleanup
	}
}

// WithSideInput registers a file every task can read by name, such as a
// lookup table joined in by reducers.
func WithSideInput(name, location string) Option {
	return func(c *config) {
		if c.SideInputs == nil {
			c.SideInputs = make(map[string]string)
		}
		c.SideInputs[name] = location
	}
}

// WithTopN makes the driver print the n largest output rows after a run
func WithTopN(n int) Option {
	return func(c *config) {
		c.TopN = n
	}
}

// WithLambda runs tasks on the named, already deployed AWS Lambda function
func WithLambda(functionName string) Option {
	return func(c *config) {
		c.Backend = lambdaBackend
		if functionName != "" {
			c.LambdaFunctionName = functionName
		}
	}
}

// WithKnative runs tasks on the Knative service listening at serviceURL
func WithKnative(serviceURL string) Option {
	return func(c *config) {
		c.Backend = knativeBackend
		c.KnativeServiceURL = serviceURL
	}
}
