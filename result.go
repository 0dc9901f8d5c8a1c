// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pubgrub

// Binding assigns a concrete form to one package in a solution. A
// successful solve yields one binding per transitively required package, in
// decision order.
type Binding struct {
	Ref   PackageReference
	Bound BoundVersion
}

func (b Binding) String() string {
	return b.Ref.String() + " " + b.Bound.String()
}
