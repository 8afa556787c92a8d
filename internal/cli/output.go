package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/congo-pay/evr_bootstrap/internal/state"
)

const detailsRule = "-----------------------------------------------------------------------"

// printAccountDetails writes the operator listing of the stored accounts,
// secrets included.
func printAccountDetails(w io.Writer, records []state.AccountRecord) {
	fmt.Fprintln(w, "\nAccount Details -------------------------------------------------------")
	for _, rec := range records {
		fmt.Fprintf(w, "Account name :%s\n", strings.ToUpper(string(rec.Role)))
		fmt.Fprintf(w, "Address : %s\n", rec.Address)
		fmt.Fprintf(w, "Secret : %s\n", rec.Secret)
		fmt.Fprintln(w, detailsRule)
	}
}
