package spec

import (
	"fmt"
	"strings"

	"github.com/tturner/enipcore/internal/cip/protocol"
)

// LabelService returns a label for a service code in the context of the
// addressed object. Codes 0x4B-0x54 mean different things per class, so the
// plain name table is not enough. ok is false for unknown services.
func LabelService(service protocol.CIPServiceCode, path protocol.CIPPath, isResponse bool) (string, bool) {
	code := service.Request()
	unknown := fmt.Sprintf("Unknown(0x%02X)", uint8(code))
	label := ServiceName(code)

	switch code {
	case 0x4B:
		switch path.Class {
		case CIPClassFileObject:
			label = "Initiate_Upload"
		case 0, CIPClassPCCCObject:
		default:
			label = unknown
		}
	case 0x4C:
		switch path.Class {
		case CIPClassFileObject:
			label = "Initiate_Download"
		case CIPClassTemplateObject:
			label = "Template_Read"
		}
	case 0x4D:
		if path.Class == CIPClassFileObject {
			label = "Initiate_Partial_Read"
		}
	case 0x4E:
		switch path.Class {
		case CIPClassConnectionManager:
			label = "Forward_Close"
		case CIPClassFileObject:
			label = "Initiate_Partial_Write"
		default:
			label = "Read_Modify_Write"
		}
	case 0x52:
		switch {
		case path.Class == CIPClassConnectionManager && path.Instance == 0x0001:
			label = "Unconnected_Send"
		case path.Class == CIPClassSymbolObject || path.Class == CIPClassTemplateObject:
			label = "Read_Tag_Fragmented"
		default:
			label = unknown
		}
	case 0x54:
		if path.Class != CIPClassConnectionManager {
			label = unknown
		}
	}

	ok := label != unknown
	if isResponse {
		label += "_Response"
	}
	return label, ok
}

// IsUnknownServiceLabel reports if the label is an Unknown placeholder.
func IsUnknownServiceLabel(label string) bool {
	return strings.HasPrefix(label, "Unknown(")
}
