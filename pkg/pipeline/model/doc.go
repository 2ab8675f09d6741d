// Package model provides the data structures shared by the pipeline package and its options.
// It defines the step descriptions handed to options, the run outcomes and the option
// interface itself, so that drawer and measure do not depend on the pipeline package.
package model
