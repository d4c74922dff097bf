package util

import (
	"crypto/rand"
	"math/big"
	"net"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/nats-io/nuid"
	"github.com/pkg/errors"
	hashids "github.com/speps/go-hashids"
)

const defaultName = "admit"

//
// generate a short useful unique name - hashid in this case
//
func GenerateName() string {

	number0, err := rand.Int(rand.Reader, big.NewInt(10000000))
	if err != nil {
		log.Warn("error generating random name seed: ", err)
		return defaultName
	}

	hd := hashids.NewData()
	hd.Salt = "otf-admit score calculator instance"
	hd.MinLength = 5
	h, err := hashids.NewWithData(hd)
	if err != nil {
		log.Warn("error auto-generating name: ", err)
		return defaultName
	}
	e, err := h.EncodeInt64([]int64{number0.Int64()})
	if err != nil {
		log.Warn("error encoding auto-generated name: ", err)
		return defaultName
	}
	return e

}

//
// generate a unique id - nuid in this case
//
func GenerateID() string {

	return nuid.Next()

}

//
// small utility function deferred around major ops
// to log how long they took.
//
func TimeTrack(start time.Time, name string) time.Duration {
	elapsed := time.Since(start)
	log.Infoj(log.JSON{"op": name, "took": elapsed.Truncate(time.Millisecond).String()})
	return elapsed
}

//
// find an available tcp port
//
func AvailablePort() (int, error) {

	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		return 0, errors.Wrap(err, "cannot acquire a tcp port")
	}
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port, nil

}
