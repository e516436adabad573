package main

import (
	"fmt"

	"github.com/librelane/parkval/internal/validator"
)

// Operator-facing status text. The wording is load-bearing: circulation
// staff documentation refers to these messages verbatim.
const (
	msgGetHelp = "Please ask circulation for assistance."

	msgScanCard          = "READY: Please scan card."
	msgValidationAllowed = "SUCCESS: valid barcode and patron account detected!\nPress [+] to validate."
	msgValidationDone    = "SUCCESS: parking validation successful!\nHave a nice day!"
	msgAdminMode         = "Admin mode active!"
	msgDebugMode         = "Debug mode active!"

	msgBadBarcode   = "ERROR: invalid barcode characters and/or length!"
	msgLockedOut    = "ERROR: too many scanning errors!\n" + msgGetHelp
	msgCommError    = "ERROR: Unable to contact remote patron database!\n" + msgGetHelp
	msgNotFound     = "ERROR: library card does not exist in system!\n" + msgGetHelp
	msgExpired      = "ERROR: library card is expired!\n" + msgGetHelp
	msgBlocked      = "ERROR: account has a block!\n" + msgGetHelp
	msgInvalidCard  = "ERROR: unspecified card problem!\n" + msgGetHelp
	msgMaxValidated = "ERROR: parking already validated the maximum allowed times today!"
	msgTooSoon      = "ERROR: previous parking validation has not yet expired!\nPlease try again at:"
	msgUnspecified  = "ERROR: unspecified account problem!\n" + msgGetHelp
	msgStoreDown    = "ERROR: local validation database is unavailable!\n" + msgGetHelp
	msgMachineFault = "ERROR: validation machine is not responding!\n" + msgGetHelp
)

// render turns a pipeline decision into the status text shown at the
// kiosk.
func render(d validator.Decision) string {
	if d.Ignored {
		return ""
	}
	if d.Validated {
		return msgValidationDone
	}

	switch d.Reason {
	case validator.ReasonBadBarcode:
		return msgBadBarcode
	case validator.ReasonLockedOut:
		return msgLockedOut
	case validator.ReasonCommError:
		return msgCommError
	case validator.ReasonNotFound:
		return msgNotFound
	case validator.ReasonCardExpired:
		return msgExpired
	case validator.ReasonCardBlocked:
		return msgBlocked
	case validator.ReasonCardInvalid:
		return msgInvalidCard
	case validator.ReasonMaxValidations:
		return msgMaxValidated
	case validator.ReasonTooSoon:
		if d.NextEligible != nil {
			return fmt.Sprintf("%s %s", msgTooSoon, d.NextEligible.Local().Format("15:04:05"))
		}
		return msgTooSoon
	case validator.ReasonUnspecified:
		return msgUnspecified
	case validator.ReasonStoreUnavailable:
		return msgStoreDown
	case validator.ReasonActuatorFault:
		return msgMachineFault
	}

	switch {
	case d.State == validator.StateAdmissible:
		if d.Patron != nil {
			return fmt.Sprintf("Patron: %s (%d/%d validations used)\n%s",
				d.Patron.Name, d.Patron.Validations, d.Patron.MaxValidations, msgValidationAllowed)
		}
		return msgValidationAllowed
	case d.DebugMode:
		return msgDebugMode
	case d.AdminMode:
		return msgAdminMode
	default:
		return msgScanCard
	}
}
