package otfadmit

import (
	"github.com/nsip/otf-admit/internal/util"
	"github.com/pkg/errors"
)

type Option func(*OtfAdmitService) error

//
// apply all supplied options to the service
// returns any error encountered while applying the options
//
func (srvc *OtfAdmitService) setOptions(options ...Option) error {
	for _, opt := range options {
		if err := opt(srvc); err != nil {
			return err
		}
	}
	return nil
}

//
// set a name for this service instance,
// if not provided a short unique name is generated
//
func Name(name string) Option {
	return func(s *OtfAdmitService) error {
		if name != "" {
			s.serviceName = name
			return nil
		}
		s.serviceName = util.GenerateName()
		return nil
	}
}

//
// set an id for this service instance,
// if not provided a unique id is generated
//
func ID(id string) Option {
	return func(s *OtfAdmitService) error {
		if id != "" {
			s.serviceID = id
			return nil
		}
		s.serviceID = util.GenerateID()
		return nil
	}
}

//
// set the host address for the service
//
func Host(hostName string) Option {
	return func(s *OtfAdmitService) error {
		if hostName != "" {
			s.serviceHost = hostName
			return nil
		}
		s.serviceHost = "localhost"
		return nil
	}
}

//
// set the port the service runs on,
// 0 picks any free port
//
func Port(port int) Option {
	return func(s *OtfAdmitService) error {
		if port != 0 {
			s.servicePort = port
			return nil
		}
		p, err := util.AvailablePort()
		if err != nil {
			return errors.Wrap(err, "Unable to assign port for service")
		}
		s.servicePort = p
		return nil
	}
}

//
// directory of extra institution definitions (*.yaml),
// loaded after the bundled ones and replacing any with the same code
//
func InstitutionDir(dir string) Option {
	return func(s *OtfAdmitService) error {
		s.institutionDir = dir
		return nil
	}
}

//
// number of students scored concurrently by the batch endpoint,
// 0 uses the number of cpus
//
func Workers(n int) Option {
	return func(s *OtfAdmitService) error {
		if n < 0 {
			return errors.Errorf("workers must not be negative, got %d", n)
		}
		s.workers = n
		return nil
	}
}
