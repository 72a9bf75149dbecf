package domain

import (
	"testing"

	"clientcore/testutil"
)

func TestDomainDoesNotImportInternal(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.AnyOf(testutil.InternalImportForbidden, testutil.DriverImportForbidden),
		"the domain model must stay free of implementation packages")
}
