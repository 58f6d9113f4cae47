package protocol

import (
	"fmt"
	"strings"
)

// GeneralStatus is the 8-bit CIP general status of a reply.
type GeneralStatus uint8

// CIP general status codes (Volume 1, Appendix B).
const (
	StatusSuccess                        GeneralStatus = 0x00
	StatusConnectionFailure              GeneralStatus = 0x01
	StatusResourceUnavailable            GeneralStatus = 0x02
	StatusInvalidParameterValue          GeneralStatus = 0x03
	StatusPathSegmentError               GeneralStatus = 0x04
	StatusPathDestinationUnknown         GeneralStatus = 0x05
	StatusPartialTransfer                GeneralStatus = 0x06
	StatusConnectionLost                 GeneralStatus = 0x07
	StatusServiceNotSupported            GeneralStatus = 0x08
	StatusInvalidAttributeValue          GeneralStatus = 0x09
	StatusAttributeListError             GeneralStatus = 0x0A
	StatusAlreadyInRequestedMode         GeneralStatus = 0x0B
	StatusObjectStateConflict            GeneralStatus = 0x0C
	StatusObjectAlreadyExists            GeneralStatus = 0x0D
	StatusAttributeNotSettable           GeneralStatus = 0x0E
	StatusPrivilegeViolation             GeneralStatus = 0x0F
	StatusDeviceStateConflict            GeneralStatus = 0x10
	StatusReplyDataTooLarge              GeneralStatus = 0x11
	StatusFragmentationOfPrimitive       GeneralStatus = 0x12
	StatusNotEnoughData                  GeneralStatus = 0x13
	StatusAttributeNotSupported          GeneralStatus = 0x14
	StatusTooMuchData                    GeneralStatus = 0x15
	StatusObjectDoesNotExist             GeneralStatus = 0x16
	StatusFragmentationNotInProgress     GeneralStatus = 0x17
	StatusNoStoredAttributeData          GeneralStatus = 0x18
	StatusStoreOperationFailure          GeneralStatus = 0x19
	StatusRoutingRequestTooLarge         GeneralStatus = 0x1A
	StatusRoutingResponseTooLarge        GeneralStatus = 0x1B
	StatusMissingAttributeListEntry      GeneralStatus = 0x1C
	StatusInvalidAttributeValueList      GeneralStatus = 0x1D
	StatusEmbeddedServiceError           GeneralStatus = 0x1E
	StatusVendorSpecificError            GeneralStatus = 0x1F
	StatusInvalidParameter               GeneralStatus = 0x20
	StatusWriteOnceAlreadyWritten        GeneralStatus = 0x21
	StatusInvalidReplyReceived           GeneralStatus = 0x22
	StatusKeyFailureInPath               GeneralStatus = 0x25
	StatusPathSizeInvalid                GeneralStatus = 0x26
	StatusUnexpectedAttributeInList      GeneralStatus = 0x27
	StatusInvalidMemberID                GeneralStatus = 0x28
	StatusMemberNotSettable              GeneralStatus = 0x29
	StatusGroup2OnlyServerGeneralFailure GeneralStatus = 0x2A
)

var generalStatusNames = map[GeneralStatus]string{
	StatusSuccess:                        "Success",
	StatusConnectionFailure:              "Connection failure",
	StatusResourceUnavailable:            "Resource unavailable",
	StatusInvalidParameterValue:          "Invalid parameter value",
	StatusPathSegmentError:               "Path segment error",
	StatusPathDestinationUnknown:         "Path destination unknown",
	StatusPartialTransfer:                "Partial transfer",
	StatusConnectionLost:                 "Connection lost",
	StatusServiceNotSupported:            "Service not supported",
	StatusInvalidAttributeValue:          "Invalid attribute value",
	StatusAttributeListError:             "Attribute list error",
	StatusAlreadyInRequestedMode:         "Already in requested mode/state",
	StatusObjectStateConflict:            "Object state conflict",
	StatusObjectAlreadyExists:            "Object already exists",
	StatusAttributeNotSettable:           "Attribute not settable",
	StatusPrivilegeViolation:             "Privilege violation",
	StatusDeviceStateConflict:            "Device state conflict",
	StatusReplyDataTooLarge:              "Reply data too large",
	StatusFragmentationOfPrimitive:       "Fragmentation of a primitive value",
	StatusNotEnoughData:                  "Not enough data",
	StatusAttributeNotSupported:          "Attribute not supported",
	StatusTooMuchData:                    "Too much data",
	StatusObjectDoesNotExist:             "Object does not exist",
	StatusFragmentationNotInProgress:     "Service fragmentation sequence not in progress",
	StatusNoStoredAttributeData:          "No stored attribute data",
	StatusStoreOperationFailure:          "Store operation failure",
	StatusRoutingRequestTooLarge:         "Routing failure, request packet too large",
	StatusRoutingResponseTooLarge:        "Routing failure, response packet too large",
	StatusMissingAttributeListEntry:      "Missing attribute list entry data",
	StatusInvalidAttributeValueList:      "Invalid attribute value list",
	StatusEmbeddedServiceError:           "Embedded service error",
	StatusVendorSpecificError:            "Vendor specific error",
	StatusInvalidParameter:               "Invalid parameter",
	StatusWriteOnceAlreadyWritten:        "Write-once value or medium already written",
	StatusInvalidReplyReceived:           "Invalid reply received",
	StatusKeyFailureInPath:               "Key failure in path",
	StatusPathSizeInvalid:                "Path size invalid",
	StatusUnexpectedAttributeInList:      "Unexpected attribute in list",
	StatusInvalidMemberID:                "Invalid member ID",
	StatusMemberNotSettable:              "Member not settable",
	StatusGroup2OnlyServerGeneralFailure: "Group 2 only server general failure",
}

// String returns the table name; unknown codes pass through as hex.
func (s GeneralStatus) String() string {
	if name, ok := generalStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(0x%02X)", uint8(s))
}

// Known reports whether the code is in the common status table.
func (s GeneralStatus) Known() bool {
	_, ok := generalStatusNames[s]
	return ok
}

// IsRoutingFailure reports whether additional status should be read as a routing error.
func (s GeneralStatus) IsRoutingFailure() bool {
	switch s {
	case StatusConnectionFailure, StatusRoutingRequestTooLarge, StatusRoutingResponseTooLarge:
		return true
	default:
		return false
	}
}

// RoutingError is the extended status word of an Unconnected Send routing failure.
type RoutingError uint16

const (
	RoutingTimeout            RoutingError = 0x0204
	RoutingInvalidPortID      RoutingError = 0x0311
	RoutingInvalidNodeAddress RoutingError = 0x0312
	RoutingInvalidSegmentType RoutingError = 0x0315
)

func (e RoutingError) String() string {
	switch e {
	case RoutingTimeout:
		return "Unconnected request timed out"
	case RoutingInvalidPortID:
		return "Invalid port ID in route path"
	case RoutingInvalidNodeAddress:
		return "Invalid node address in route path"
	case RoutingInvalidSegmentType:
		return "Invalid segment type in route path"
	default:
		return fmt.Sprintf("RoutingError(0x%04X)", uint16(e))
	}
}

// StatusError is a successfully decoded reply carrying a non-success status.
// It is application data, not a codec failure.
type StatusError struct {
	Service          CIPServiceCode
	Status           GeneralStatus
	AdditionalStatus []uint16
}

func (e *StatusError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CIP service 0x%02X failed: status 0x%02X (%s)", uint8(e.Service), uint8(e.Status), e.Status)
	if len(e.AdditionalStatus) > 0 {
		b.WriteString(", additional status")
		for _, word := range e.AdditionalStatus {
			fmt.Fprintf(&b, " 0x%04X", word)
		}
		if e.Status.IsRoutingFailure() {
			fmt.Fprintf(&b, " (%s)", RoutingError(e.AdditionalStatus[0]))
		}
	}
	return b.String()
}
