package devicequeue

// Status is the API-visible result of device queue operations. Values match the OpenCL error codes
// the operations are exposed through.
type Status int32

const (
	StatusSuccess                Status = 0
	StatusOutOfResources         Status = -5
	StatusInvalidValue           Status = -30
	StatusInvalidDevice          Status = -33
	StatusInvalidContext         Status = -34
	StatusInvalidQueueProperties Status = -35
	StatusInvalidArgIndex        Status = -49
	StatusInvalidArgValue        Status = -50
	StatusInvalidArgSize         Status = -51
	StatusInvalidOperation       Status = -59
	StatusInvalidDeviceQueue     Status = -70
)

var statusMapping = map[Status]string{
	StatusSuccess:                "Success",
	StatusOutOfResources:         "OutOfResources",
	StatusInvalidValue:           "InvalidValue",
	StatusInvalidDevice:          "InvalidDevice",
	StatusInvalidContext:         "InvalidContext",
	StatusInvalidQueueProperties: "InvalidQueueProperties",
	StatusInvalidArgIndex:        "InvalidArgIndex",
	StatusInvalidArgValue:        "InvalidArgValue",
	StatusInvalidArgSize:         "InvalidArgSize",
	StatusInvalidOperation:       "InvalidOperation",
	StatusInvalidDeviceQueue:     "InvalidDeviceQueue",
}

func (s Status) String() string {
	return statusMapping[s]
}
