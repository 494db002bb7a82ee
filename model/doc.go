// Package model provides neural backbones for tabular data.
//
// A backbone encodes the columns of a tensor frame stype by stype and maps them to
// output channels. Models are created by kind and configured by Params.
//
// Feed-forward models include:
//   - MLP
package model
